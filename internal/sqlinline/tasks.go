package sqlinline

const QInsertTask = `--sql 0e033b7d-1850-4812-8530-fe371a70a43d
insert into generation_tasks (id, user_id, cost, status, created_at, updated_at)
values ($1::uuid, $2::bigint, $3::bigint, 'processing', $4::timestamptz, $4::timestamptz);
`

// QTransitionTask returns no row when the task no longer holds status $3.
const QTransitionTask = `--sql 71223b25-4888-4fe0-b62e-098ffdb25f4d
update generation_tasks
set status = $2::text,
    updated_at = now()
where id = $1::uuid
  and status = $3::text
returning id;
`

const QClaimTaskRefund = `--sql 3c9a7e52-0d4b-4f1e-8a6c-5b2d9e7f1a34
update generation_tasks
set updated_at = now()
where id = $1::uuid
  and status = 'refunding'
  and updated_at < $2::timestamptz
returning id;
`

const QListStaleTasks = `--sql 45004c03-5d51-4c91-acf5-250008a59e06
select id, user_id, cost, status, created_at, updated_at
from generation_tasks
where (status = 'processing' and created_at < $1::timestamptz)
   or (status = 'refunding' and updated_at < $1::timestamptz)
order by created_at asc;
`

const QSelectTaskByID = `--sql e0ffb0a7-4bfc-436b-9f42-2420521a2e6e
select id, user_id, cost, status, created_at, updated_at
from generation_tasks
where id = $1::uuid
limit 1;
`
