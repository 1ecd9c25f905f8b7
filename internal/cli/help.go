package cli

const longHelp = `moodlelogs joins the site log report downloaded from a Moodle platform with
the rows of the standard log store, labels every event with its course area,
year and the acting user's role, reclassifies components by an ordered rule
table and drops activity that is not learning (cron, admins, guests, system
components). The result is one table in CSV, XLSX or JSONL.

Settings are read from the config file and may be overridden by flags:

  sources:
    platform: ~/exports/platform          # file or directory of per-user exports
    database: ~/exports/logstore.csv.gz   # or sources.db.dsn for a live database
    malformed_rows: abort                 # or drop
  reference:
    courses: ~/exports/courses.csv
    students: ~/exports/students.csv
  output:
    path: ~/out/logs.xlsx

Every run is recorded in a hash-chained ledger; see "moodlelogs audit".`
