package progress

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buildStream = `{"stream":"Step 1/3 : FROM odoo:17.0\n"}
{"stream":" ---> 1a2b3c\n"}{"stream":"Successfully built 4f5e6d7c8b9a\n"}
{"stream":"Successfully tagged odooghost_demo:17.0\n"}
`

func TestDecoder_SplitAcrossReads(t *testing.T) {
	// OneByteReader forces every object to arrive in pieces.
	dec := NewDecoder(iotest.OneByteReader(strings.NewReader(buildStream)))

	var streams []string
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		streams = append(streams, ev.Stream)
	}
	assert.Len(t, streams, 4)
	assert.Equal(t, "Successfully built 4f5e6d7c8b9a\n", streams[2])
}

func TestDecoder_Garbage(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"status":"ok"} not-json`))

	_, err := dec.Next()
	require.NoError(t, err)

	_, err = dec.Next()
	var perr *StreamParseError
	require.ErrorAs(t, err, &perr)
}

func TestStream_RendersAndCollects(t *testing.T) {
	var out bytes.Buffer
	events, err := Stream(strings.NewReader(buildStream), &out)
	require.NoError(t, err)

	assert.Len(t, events, 4)
	assert.Contains(t, out.String(), "Step 1/3 : FROM odoo:17.0")

	id, ok := ImageIDFromBuild(events)
	assert.True(t, ok)
	assert.Equal(t, "4f5e6d7c8b9a", id)
}

func TestStream_ErrorDetailStopsImmediately(t *testing.T) {
	input := `{"stream":"Step 1/2\n"}
{"errorDetail":{"code":1,"message":"pip failed"},"error":"pip failed"}
{"stream":"never read\n"}`

	events, err := Stream(strings.NewReader(input), nil)

	var serr *StreamOutputError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "pip failed", serr.Message)
	assert.Equal(t, 1, serr.Code)
	assert.Len(t, events, 2)
}

func TestStream_LegacyErrorField(t *testing.T) {
	_, err := Stream(strings.NewReader(`{"error":"manifest unknown"}`), nil)
	var serr *StreamOutputError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "manifest unknown", serr.Error())
}

func TestStream_StatusLines(t *testing.T) {
	var out bytes.Buffer
	_, err := Stream(strings.NewReader(`{"status":"Pulling fs layer","id":"abc"}{"status":"Pull complete"}`), &out)
	require.NoError(t, err)
	assert.Equal(t, "abc: Pulling fs layer\nPull complete\n", out.String())
}

func TestImageIDFromBuild_AuxFallback(t *testing.T) {
	aux := json.RawMessage(`{"ID":"sha256:deadbeef"}`)
	events := []Event{{Stream: "Step 1/1\n"}, {Aux: &aux}}

	id, ok := ImageIDFromBuild(events)
	assert.True(t, ok)
	assert.Equal(t, "sha256:deadbeef", id)
}

func TestImageIDFromBuild_Missing(t *testing.T) {
	_, ok := ImageIDFromBuild([]Event{{Stream: "Step 1/1\n"}})
	assert.False(t, ok)
}

func TestDigestFromPull(t *testing.T) {
	events := []Event{
		{Status: "Pulling from library/postgres", ID: "15"},
		{Status: "Digest: sha256:0123abcd"},
		{Status: "Status: Downloaded newer image for postgres:15"},
	}
	digest, ok := DigestFromPull(events)
	assert.True(t, ok)
	assert.Equal(t, "sha256:0123abcd", digest)

	_, ok = DigestFromPull(events[:1])
	assert.False(t, ok)
}
