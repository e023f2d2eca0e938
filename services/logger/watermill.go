package logsvc

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/trezcool/warsha/core"
)

// WatermillAdapter sends watermill's logs to a core.Logger.
// Trace logs are dropped; Debug logs are dropped unless debug is set.
type WatermillAdapter struct {
	log    core.Logger
	debug  bool
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

func NewWatermillAdapter(log core.Logger, debug bool) *WatermillAdapter {
	return &WatermillAdapter{log: log, debug: debug}
}

func (a *WatermillAdapter) merge(fields watermill.LogFields) map[string]interface{} {
	return a.fields.Add(fields)
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, err, a.merge(fields))
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, a.merge(fields))
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	if a.debug {
		a.log.Debug(msg, a.merge(fields))
	}
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{log: a.log, debug: a.debug, fields: a.fields.Add(fields)}
}
