package sqlinline

const QInsertPurchase = `--sql ad11119d-724e-41c8-9f47-a0e4b3500e5a
insert into purchases (id, user_id, package, amount, price, status, created_at)
values ($1::uuid, $2::bigint, $3::text, $4::bigint, $5::numeric, 'pending', $6::timestamptz);
`

// QMarkPurchasePaid returns no row when the purchase is missing or already paid.
const QMarkPurchasePaid = `--sql c3e6880c-ed2b-4111-a1f9-37f3d81c2fe7
update purchases
set status = 'paid',
    paid_at = $2::timestamptz
where id = $1::uuid
  and status = 'pending'
returning id, user_id, package, amount, price::text, status, created_at, paid_at;
`

const QSelectPurchaseStatus = `--sql 157737be-45bd-4759-9f80-35e44b6c5891
select status
from purchases
where id = $1::uuid;
`

const QListPurchasesByUser = `--sql 8f47da89-6f93-4fdd-b88b-f9f917373d93
select id, user_id, package, amount, price::text, status, created_at, paid_at
from purchases
where user_id = $1::bigint
order by created_at desc
limit $2::int;
`

const QSumPaidByUser = `--sql 0304d984-c5af-4e56-99cd-df08af88622c
select coalesce(sum(price), 0)::text
from purchases
where user_id = $1::bigint
  and status = 'paid';
`
