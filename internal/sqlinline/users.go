package sqlinline

const QInsertUser = `--sql 4419cc03-eeed-4dc5-b173-049628700461
with inserted as (
    insert into users (id, username, full_name, language, preferred_tier, referrer_id, created_at, updated_at)
    values ($1::bigint, nullif($2::text, ''), $3::text, $4::text, $5::text, nullif($6::bigint, 0), now(), now())
    on conflict (id) do nothing
    returning id, coalesce(username, ''), full_name, language, preferred_tier, coalesce(referrer_id, 0), created_at, updated_at, true as created
)
select * from inserted
union all
select id, coalesce(username, ''), full_name, language, preferred_tier, coalesce(referrer_id, 0), created_at, updated_at, false
from users
where id = $1::bigint and not exists (select 1 from inserted);
`

const QSelectUserByID = `--sql f00b8bcf-bee4-4d35-9402-693001049343
select id, coalesce(username, ''), full_name, language, preferred_tier, coalesce(referrer_id, 0), created_at, updated_at
from users
where id = $1::bigint
limit 1;
`

const QSelectUserByUsername = `--sql 6c02ba97-e811-4c11-b3e7-f843f06ba7da
select id, coalesce(username, ''), full_name, language, preferred_tier, coalesce(referrer_id, 0), created_at, updated_at
from users
where lower(username) = lower($1::text)
limit 1;
`

const QUpdateUserTier = `--sql 944de4b4-93b1-4f15-a069-cd5861ea1a61
update users
set preferred_tier = $2::text,
    updated_at = now()
where id = $1::bigint;
`
