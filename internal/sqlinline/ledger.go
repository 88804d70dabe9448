package sqlinline

const QOpenBalance = `--sql 4be08d2d-fe50-4072-9afd-d433efacb09a
insert into credit_balances (user_id, balance, updated_at)
values ($1::bigint, $2::bigint, now())
on conflict (user_id) do nothing;
`

const QSelectBalance = `--sql 7aaccc76-f45e-44c7-9dfe-3484b1c41cb3
select balance
from credit_balances
where user_id = $1::bigint;
`

// QReserveCredits debits only when the balance covers the amount; no row
// means the reservation was refused.
const QReserveCredits = `--sql 5b7fe4ca-09df-4252-8751-1ece48eddaee
update credit_balances
set balance = balance - $2::bigint,
    updated_at = now()
where user_id = $1::bigint
  and balance >= $2::bigint
returning balance;
`

const QRefundCredits = `--sql 7f734b3a-99bc-468b-bddf-aecf172ad9cb
insert into credit_balances (user_id, balance, updated_at)
values ($1::bigint, $2::bigint, now())
on conflict (user_id) do update set
    balance = credit_balances.balance + excluded.balance,
    updated_at = now()
returning balance;
`

const QAdjustCredits = `--sql 38bb4f17-7488-4ec6-9763-84a6e76ae8e8
insert into credit_balances (user_id, balance, updated_at)
values ($1::bigint, greatest($2::bigint, 0), now())
on conflict (user_id) do update set
    balance = greatest(credit_balances.balance + $2::bigint, 0),
    updated_at = now()
returning balance;
`

// QClaimBonus credits only when the (user, kind) claim row is new.
const QClaimBonus = `--sql 147dd620-5517-464a-b0e1-6d3334a569b5
with claim as (
    insert into credit_bonus_claims (user_id, kind, amount, claimed_at)
    values ($1::bigint, $2::text, $3::bigint, now())
    on conflict (user_id, kind) do nothing
    returning user_id, amount
)
insert into credit_balances (user_id, balance, updated_at)
select user_id, amount, now() from claim
on conflict (user_id) do update set
    balance = credit_balances.balance + excluded.balance,
    updated_at = now()
returning balance;
`
