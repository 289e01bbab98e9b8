package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

const describeRequestCheck = `Queues a clone check for every eligible submission of a course.

USE WHEN:
- A course deadline passed and submissions should be compared
- Reports are missing or stale for a course

INTERPRETING RESULTS:
- Returns the queued requests in run order: the course baseline repository,
  one request per open or closed submission, then the course report
- The check runs in the background; files that are still being fetched are
  retried until they are available
- Poll get_queue until the course report request is gone, then read reports`

const describeCloneReport = `Returns the stored clone report of one submission.

USE WHEN:
- Reviewing a submission for code shared with other students
- Following up on a flagged submission from get_course_summary

INTERPRETING RESULTS:
- Each clone class lists functions whose token structure is identical after
  identifiers and literals are anonymized, so renaming does not hide a clone
- Every class contains the submission itself and at least one other student
- Code from the course baseline repository is never reported
- An empty report means no cross-student clones were found`

const describeCourseSummary = `Returns the summary of the last clone check of a course.

USE WHEN:
- Getting an overview before opening individual reports
- Looking for groups of students sharing code

INTERPRETING RESULTS:
- flagged_submissions have at least one clone class
- clusters are groups of submissions linked by shared clone classes;
  a large cluster suggests code circulated among many students
- ignored_baseline_count counts classes trimmed or dropped because they
  contained course baseline code`

const describeQueue = `Shows the pending clone-check requests.

USE WHEN:
- Waiting for a requested check to finish
- Diagnosing a check that does not complete

INTERPRETING RESULTS:
- Requests run one at a time by priority: baselines, submissions,
  submission reports, course reports
- attempts and last_error show requests waiting on files that are not ready
  or that failed; they are retried with backoff`
