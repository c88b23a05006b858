package bus

// Task is a deferred unit of work run on the owner goroutine.
type Task func()

// Scheduler is a FIFO of deferred tasks. It belongs to the owner goroutine
// and is not safe for concurrent use; nothing but the owner touches it.
type Scheduler struct {
	queue []Task

	// Stats
	totalScheduled int64
	totalRun       int64
	totalDropped   int64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule appends t. It never runs t inline.
func (s *Scheduler) Schedule(t Task) {
	if t == nil {
		return
	}
	s.queue = append(s.queue, t)
	s.totalScheduled++
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// RunNext runs the oldest queued task. It reports false if the queue was empty.
func (s *Scheduler) RunNext() bool {
	if len(s.queue) == 0 {
		return false
	}
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.totalRun++
	t()
	return true
}

// RunPending runs the tasks that were queued when it was called. Tasks
// scheduled while it runs wait for the next yield.
func (s *Scheduler) RunPending() int {
	n := len(s.queue)
	for i := 0; i < n; i++ {
		if !s.RunNext() {
			return i
		}
	}
	return n
}

// Drop discards all queued tasks without running them.
func (s *Scheduler) Drop() int {
	n := len(s.queue)
	s.queue = nil
	s.totalDropped += int64(n)
	return n
}

// SchedulerStats is a snapshot of scheduler counters.
type SchedulerStats struct {
	Pending   int   `json:"pending"`
	Scheduled int64 `json:"scheduled"`
	Run       int64 `json:"run"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Pending:   len(s.queue),
		Scheduled: s.totalScheduled,
		Run:       s.totalRun,
		Dropped:   s.totalDropped,
	}
}
