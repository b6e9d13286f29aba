package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodegraph/node"
)

func TestNewResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantOK   bool
		business bool
		unknown  bool
	}{
		{
			name:     "success",
			wantCode: CodeOK,
			wantOK:   true,
		},
		{
			name:     "business failure",
			err:      &node.RunError{Graph: "g", Node: "n", Kind: node.KindBusiness, Err: node.Fail("DECLINED", "card declined")},
			wantCode: "DECLINED",
			business: true,
		},
		{
			name:     "timeout",
			err:      &node.RunError{Graph: "g", Node: "n", Kind: node.KindTimeout, Err: &node.TimeoutError{Node: "n"}},
			wantCode: CodeInternal,
			unknown:  true,
		},
		{
			name:     "canceled",
			err:      &node.RunError{Graph: "g", Kind: node.KindCanceled, Err: context.Canceled},
			wantCode: CodeCanceled,
			unknown:  true,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: CodeInternal,
			unknown:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewResult(tt.err, "payload")
			assert.Equal(t, tt.wantCode, res.Code)
			assert.Equal(t, tt.wantOK, res.OK())
			assert.Equal(t, tt.business, res.IsBusinessFailure())
			assert.Equal(t, tt.unknown, res.IsUnknownFailure())
			if tt.wantOK {
				assert.Equal(t, "payload", res.Payload)
				assert.Empty(t, res.Message)
			} else {
				assert.Nil(t, res.Payload)
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in      string
		want    Verbosity
		wantErr bool
	}{
		{in: "", want: VerbosityBoundary},
		{in: "none", want: VerbosityNone},
		{in: "Basic", want: VerbosityBasic},
		{in: "timing", want: VerbosityTiming},
		{in: "boundary", want: VerbosityBoundary},
		{in: "all", want: VerbosityAll},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVerbosity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			if tt.in != "" {
				assert.Equal(t, tt.want.String(), v.String())
			}
		})
	}
}

func TestVerbosity_ForNode(t *testing.T) {
	tests := []struct {
		v        Verbosity
		boundary bool
		want     nodeDetail
	}{
		{v: VerbosityNone, boundary: true, want: nodeDetail{}},
		{v: VerbosityBasic, boundary: true, want: nodeDetail{enabled: true}},
		{v: VerbosityTiming, want: nodeDetail{enabled: true, timing: true}},
		{v: VerbosityBoundary, want: nodeDetail{enabled: true, timing: true}},
		{v: VerbosityBoundary, boundary: true, want: nodeDetail{enabled: true, timing: true, params: true}},
		{v: VerbosityAll, want: nodeDetail{enabled: true, timing: true, params: true}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.forNode(tt.boundary), "%s boundary=%v", tt.v, tt.boundary)
	}
}

func TestFailurePolicyFor(t *testing.T) {
	assert.Equal(t, verdictInterrupt, failurePolicyFor(node.Policy{Disposition: node.Interrupt}).onFailure(1))
	assert.Equal(t, verdictAbandon, failurePolicyFor(node.Policy{Disposition: node.Abandon}).onFailure(1))

	retry := failurePolicyFor(node.Policy{Disposition: node.Retry, Retries: 3})
	assert.Equal(t, verdictRetry, retry.onFailure(1))
	assert.Equal(t, verdictRetry, retry.onFailure(2))
	assert.Equal(t, verdictInterrupt, retry.onFailure(3), "Exhausted retries interrupt the run")
}
