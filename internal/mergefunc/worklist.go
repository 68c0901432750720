package mergefunc

import (
	"github.com/oleiade/lane"

	"funcmerge/internal/ir"
)

// worklist queues functions whose position in the index went stale. Erased
// functions stay queued until the next drain drops them.
type worklist struct {
	q *lane.Queue
}

func newWorklist() *worklist {
	return &worklist{q: lane.NewQueue()}
}

func (w *worklist) push(f *ir.Func) {
	w.q.Enqueue(f)
}

func (w *worklist) empty() bool {
	return w.q.Empty()
}

func (w *worklist) len() int {
	return w.q.Size()
}

// drain moves everything queued into a batch, in queue order, dropping
// functions erased since they were queued.
func (w *worklist) drain() []*ir.Func {
	batch := make([]*ir.Func, 0, w.q.Size())
	for !w.q.Empty() {
		f := w.q.Dequeue().(*ir.Func)
		if f.Erased() {
			continue
		}
		batch = append(batch, f)
	}
	return batch
}
