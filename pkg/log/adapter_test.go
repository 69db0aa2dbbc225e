package log

import (
	"bytes"
	"strings"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

func TestBadgerLogrusAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	var adapter badger.Logger = NewBadgerLogrusAdapter(logrus.NewEntry(logger))

	adapter.Errorf("error %s", "one")
	adapter.Warningf("warning %s", "two")
	adapter.Infof("info %s", "three")
	adapter.Debugf("debug %s", "four")

	out := buf.String()
	for _, want := range []string{"error one", "warning two", "info three", "debug four"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}
