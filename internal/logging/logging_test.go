package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.WithField("tx", "0xabc").Debug("redemption accepted")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "redemption accepted", line["msg"])
	assert.Equal(t, "0xabc", line["tx"])
	assert.Equal(t, "redeemdesk", line["service"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, parseLevel("nonsense"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, logrus.TraceLevel, parseLevel("trace"))
}
