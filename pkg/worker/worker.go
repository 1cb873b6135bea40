package worker

import "github.com/hbomb79/Iris/pkg/logger"

var workerLogger = logger.Get("Worker")

type WorkerWakeupChan chan int
type WorkerStatus int

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

// WorkerTask is the unit of work executed by a worker. The function is
// expected to loop until its work source is exhausted, calling Sleep on
// the provided worker between passes. A 'false' return from Sleep means
// the pool is closing and the task should return.
type WorkerTask func(Worker) error

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Sleep() bool
	Close()
}

type taskWorker struct {
	label         string
	task          WorkerTask
	wakeupChan    WorkerWakeupChan
	currentStatus WorkerStatus
}

func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{
		label,
		task,
		make(WorkerWakeupChan),
		SLEEPING,
	}
}

func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker with label %v\n", worker.label)
	worker.currentStatus = WORKING
	if err := worker.task(worker); err != nil {
		workerLogger.Emit(logger.ERROR, "Worker with label %v has reported an error(%T): %v\n", worker.label, err, err.Error())
	}

	worker.currentStatus = FINISHED
	workerLogger.Emit(logger.STOP, "Worker with label %v has stopped\n", worker.label)
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the WakeChan.
// Note that this does not interupt currently running
// goroutines.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// Sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
		worker.currentStatus = FINISHED
	}

	return isAlive
}
