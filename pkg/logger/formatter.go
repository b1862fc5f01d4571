package logger

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// ndjsonFormatter renders each logrus.Entry as exactly one line of JSON
// with the keys timestamp, level, message, module, event, fields — the
// schema required by the NDJSON log contract. Every other entry field
// (anything added via WithField/WithFields besides "module" and "event")
// is nested under "fields" rather than hoisted to the top level, so the
// key set never drifts as callers add context.
type ndjsonFormatter struct{}

type ndjsonLine struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Module    string                 `json:"module"`
	Event     string                 `json:"event"`
	Fields    map[string]interface{} `json:"fields"`
}

func (f *ndjsonFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	module, _ := entry.Data["module"].(string)
	event, _ := entry.Data["event"].(string)

	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		if k == "module" || k == "event" {
			continue
		}
		if err, ok := v.(error); ok {
			fields[k] = err.Error()
			continue
		}
		fields[k] = v
	}

	line := ndjsonLine{
		Timestamp: entry.Time.UTC().Format(time.RFC3339),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Module:    module,
		Event:     event,
		Fields:    fields,
	}

	buf, err := json.Marshal(line)
	if err != nil {
		return nil, err
	}
	buf = append(buf, '\n')
	return buf, nil
}

var _ logrus.Formatter = (*ndjsonFormatter)(nil)
