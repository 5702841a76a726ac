// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github-insight/internal/common/config"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Registration binds a task type to the handler that serves it.
type Registration struct {
	TaskType string
	Handler  worker.JobHandler
}

// StartWorkers opens one job worker per enabled registration and returns
// the open workers so they can be closed on shutdown.
func StartWorkers(client zbc.Client, cfg *config.Config, regs []Registration, log Logger) []worker.JobWorker {
	workers := make([]worker.JobWorker, 0, len(regs))
	for _, reg := range regs {
		wcfg := config.GetWorkerConfig(cfg, reg.TaskType)
		if !wcfg.Enabled {
			log.Info("worker disabled", map[string]interface{}{
				"taskType": reg.TaskType,
			})
			continue
		}

		w := client.NewJobWorker().
			JobType(reg.TaskType).
			Handler(reg.Handler).
			MaxJobsActive(wcfg.MaxJobsActive).
			Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
			Open()
		workers = append(workers, w)

		log.Info("worker started", map[string]interface{}{
			"taskType":      reg.TaskType,
			"maxJobsActive": wcfg.MaxJobsActive,
			"timeout_ms":    wcfg.Timeout,
		})
	}
	return workers
}

// StopWorkers closes every worker and waits for in-flight jobs.
func StopWorkers(workers []worker.JobWorker, log Logger) {
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	log.Info("workers stopped", map[string]interface{}{
		"count": len(workers),
	})
}
