package tasks

import (
	"sort"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

type intentKind int

const (
	intentSet intentKind = iota
	intentDelete
	intentCompleteAll
	intentDeleteCompleted
)

func (k intentKind) String() string {
	switch k {
	case intentSet:
		return "set-completion"
	case intentDelete:
		return "delete"
	case intentCompleteAll:
		return "complete-all"
	case intentDeleteCompleted:
		return "delete-completed"
	}
	return "unknown"
}

// intent is a mutation issued but not yet answered by the gateway.
type intent struct {
	seq       uint64
	kind      intentKind
	id        string
	completed bool
}

func (in intent) bulk() bool {
	return in.kind == intentCompleteAll || in.kind == intentDeleteCompleted
}

// apply returns tasks as they look once in has taken effect. Bulk intents
// leave provisional entries born after them alone: those creations reach
// the gateway only after the bulk call.
func (in intent) apply(tasks []model.Task, born map[string]uint64) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		covered := !t.Provisional() || born[t.ID] < in.seq
		switch in.kind {
		case intentSet:
			if t.ID == in.id {
				t.Completed = in.completed
			}
		case intentDelete:
			if t.ID == in.id {
				continue
			}
		case intentCompleteAll:
			if covered {
				t.Completed = true
			}
		case intentDeleteCompleted:
			if covered && t.Completed {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// confirmation is a mutation the gateway has accepted: a created task or
// an answered intent.
type confirmation struct {
	created *model.Task
	in      intent
}

// replay applies confirmations, in order, to a list read from the gateway
// that may or may not already reflect them. A bulk intent skips tasks
// created after it.
func replay(tasks []model.Task, log []confirmation) []model.Task {
	for i, cf := range log {
		if cf.created != nil {
			tasks = append(removeTask(tasks, cf.created.ID), *cf.created)
			continue
		}
		if !cf.in.bulk() {
			tasks = cf.in.apply(tasks, nil)
			continue
		}
		later := make(map[string]bool)
		for _, next := range log[i+1:] {
			if next.created != nil {
				later[next.created.ID] = true
			}
		}
		var newer, rest []model.Task
		for _, t := range tasks {
			if later[t.ID] {
				newer = append(newer, t)
			} else {
				rest = append(rest, t)
			}
		}
		tasks = append(cf.in.apply(rest, nil), newer...)
	}
	return tasks
}

// arrange puts provisional entries first, newest first, followed by the
// confirmed tasks in display order.
func arrange(tasks []model.Task, born map[string]uint64) []model.Task {
	var prov, conf []model.Task
	for _, t := range tasks {
		if t.Provisional() {
			prov = append(prov, t)
		} else {
			conf = append(conf, t)
		}
	}
	sort.SliceStable(prov, func(i, j int) bool { return born[prov[i].ID] > born[prov[j].ID] })
	model.Sort(conf)
	return append(prov, conf...)
}
