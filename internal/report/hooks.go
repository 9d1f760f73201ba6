package report

import (
	"fmt"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// SavedHook is called after a report has been saved to its canonical file
type SavedHook func(report *models.DailyReport) error

type namedHook struct {
	name string
	fn   SavedHook
}

// AddSavedHook registers a hook run synchronously after every successful save
func (c *Calculator) AddSavedHook(name string, hook SavedHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, namedHook{name: name, fn: hook})
}

func (c *Calculator) runSavedHooks(report *models.DailyReport) {
	c.hooksMu.RLock()
	hooks := make([]namedHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := callHook(h, report); err != nil {
			logger.Warn("Report saved hook failed",
				logger.String("hook", h.name),
				logger.Date(report.Date),
				logger.ErrorField(err),
			)
			logger.CountError("report", "hook")
		}
	}
}

func callHook(h namedHook, report *models.DailyReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.fn(report)
}
