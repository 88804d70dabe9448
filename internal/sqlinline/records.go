package sqlinline

const QInsertRecord = `--sql c97fd93c-be26-40eb-b38a-4ed7e9b1b1e3
insert into generation_records (id, user_id, prompt, input_refs, ratio, cost, tier, resolution, artifact_key, source_url, created_at)
values ($1::uuid, $2::bigint, $3::text, $4::jsonb, $5::text, $6::bigint, $7::text, $8::text, $9::text, $10::text, $11::timestamptz);
`

const QSelectRecordByID = `--sql 9929e8ae-41b3-4cb7-a93a-2f5628359721
select id, user_id, prompt, input_refs, ratio, cost, tier, resolution, artifact_key, source_url, created_at
from generation_records
where id = $1::uuid
limit 1;
`

const QCountRecordsByUser = `--sql 90a1f6aa-776e-41ab-84ae-3b6521bc07f5
select count(*)
from generation_records
where user_id = $1::bigint;
`
