package backend

import (
	"sort"
	"strings"
)

// Job is a workload item the fake simulator schedules.
type Job struct {
	PID      int    `json:"pid" yaml:"pid"`
	Name     string `json:"name" yaml:"name"`
	Arrival  int    `json:"arrival" yaml:"arrival"`
	Burst    int    `json:"burst" yaml:"burst"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Algorithm names accepted by the simulator.
const (
	AlgorithmFCFS       = "FCFS"
	AlgorithmSJF        = "SJF"
	AlgorithmPriority   = "Priority"
	AlgorithmRoundRobin = "RoundRobin"
)

// CanonicalAlgorithm maps user spellings ("rr", "round_robin", "fcfs") to
// one of the Algorithm constants. Unknown names fall back to FCFS.
func CanonicalAlgorithm(name string) string {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)) {
	case "sjf", "shortestjobfirst":
		return AlgorithmSJF
	case "priority":
		return AlgorithmPriority
	case "rr", "roundrobin":
		return AlgorithmRoundRobin
	default:
		return AlgorithmFCFS
	}
}

// Schedule runs jobs through a simple uniprocessor scheduler. It exists so
// the fake backend can answer scheduling calls with realistic Gantt data;
// SJF and Priority are non-preemptive, Round Robin uses quantum.
func Schedule(jobs []Job, algorithm string, quantum int) ScheduleResult {
	algorithm = CanonicalAlgorithm(algorithm)
	if quantum <= 0 {
		quantum = 2
	}

	pending := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Burst <= 0 {
			continue
		}
		if j.Arrival < 0 {
			j.Arrival = 0
		}
		j.Name = ProcessLabel(j.PID, j.Name)
		pending = append(pending, j)
	}
	sort.SliceStable(pending, func(a, b int) bool { return pending[a].Arrival < pending[b].Arrival })

	var gantt []GanttEntry
	if algorithm == AlgorithmRoundRobin {
		gantt = roundRobin(pending, quantum)
	} else {
		gantt = nonPreemptive(pending, algorithm)
	}

	first := make(map[int]int)
	last := make(map[int]int)
	for _, g := range gantt {
		if _, ok := first[g.ProcessID]; !ok {
			first[g.ProcessID] = g.StartTime
		}
		last[g.ProcessID] = g.EndTime
	}

	res := ScheduleResult{
		Processes:    make([]ProcessDetail, 0, len(pending)),
		GanttChart:   gantt,
		Algorithm:    algorithm,
		ProcessCount: len(pending),
	}
	var totalWait, totalTurn int
	for _, j := range pending {
		turnaround := last[j.PID] - j.Arrival
		waiting := turnaround - j.Burst
		totalWait += waiting
		totalTurn += turnaround
		res.Processes = append(res.Processes, ProcessDetail{
			PID:            j.PID,
			ProcessName:    j.Name,
			ArrivalTime:    j.Arrival,
			BurstTime:      j.Burst,
			Priority:       j.Priority,
			StartTime:      first[j.PID],
			CompletionTime: last[j.PID],
			WaitingTime:    waiting,
			TurnaroundTime: turnaround,
		})
	}
	if n := len(pending); n > 0 {
		res.AverageWaitingTime = float64(totalWait) / float64(n)
		res.AverageTurnaroundTime = float64(totalTurn) / float64(n)
	}
	return res
}

func nonPreemptive(jobs []Job, algorithm string) []GanttEntry {
	var gantt []GanttEntry
	remaining := append([]Job(nil), jobs...)
	clock := 0
	for len(remaining) > 0 {
		ready := -1
		for i, j := range remaining {
			if j.Arrival > clock {
				continue
			}
			if ready == -1 || better(j, remaining[ready], algorithm) {
				ready = i
			}
		}
		if ready == -1 {
			// CPU idles until the next arrival.
			clock = remaining[0].Arrival
			continue
		}
		j := remaining[ready]
		gantt = append(gantt, GanttEntry{ProcessID: j.PID, ProcessName: j.Name, StartTime: clock, EndTime: clock + j.Burst})
		clock += j.Burst
		remaining = append(remaining[:ready], remaining[ready+1:]...)
	}
	return gantt
}

func better(a, b Job, algorithm string) bool {
	switch algorithm {
	case AlgorithmSJF:
		if a.Burst != b.Burst {
			return a.Burst < b.Burst
		}
	case AlgorithmPriority:
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
	}
	return a.Arrival < b.Arrival
}

func roundRobin(jobs []Job, quantum int) []GanttEntry {
	var gantt []GanttEntry
	left := make(map[int]int, len(jobs))
	for _, j := range jobs {
		left[j.PID] = j.Burst
	}

	var queue []Job
	next := 0
	clock := 0
	admit := func() {
		for next < len(jobs) && jobs[next].Arrival <= clock {
			queue = append(queue, jobs[next])
			next++
		}
	}

	admit()
	for len(queue) > 0 || next < len(jobs) {
		if len(queue) == 0 {
			clock = jobs[next].Arrival
			admit()
			continue
		}
		j := queue[0]
		queue = queue[1:]
		slice := quantum
		if left[j.PID] < slice {
			slice = left[j.PID]
		}
		gantt = append(gantt, GanttEntry{ProcessID: j.PID, ProcessName: j.Name, StartTime: clock, EndTime: clock + slice})
		clock += slice
		left[j.PID] -= slice
		admit()
		if left[j.PID] > 0 {
			queue = append(queue, j)
		}
	}
	return gantt
}
