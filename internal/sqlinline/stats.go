package sqlinline

const QStatsSummary = `--sql 7aa15d52-81f4-49a4-8466-605246c7c168
select
  (select count(*) from users) as users,
  (select count(*) from generation_records) as generations,
  (select coalesce(sum(price), 0) from purchases where status = 'paid')::text as revenue;
`
