package docker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Build Stream Tests
// =============================================================================

func TestConsumeBuildStream_CollectsLogAndImageID(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 1/8 : FROM python:3.10-slim\n"}`,
		`{"stream":" ---> abc\n"}`,
		`{"stream":"Step 4/8 : RUN pip install --no-cache-dir -r requirements.txt\n"}`,
		`{"aux":{"ID":"sha256:deadbeef"}}`,
		`{"stream":"Successfully built deadbeef\n"}`,
	}, "\n")

	result, err := consumeBuildStream(strings.NewReader(stream), BuildSpec{Tag: "timer-bot:latest"})

	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", result.ImageID)
	assert.Contains(t, result.Log, "Step 1/8 : FROM python:3.10-slim")
	assert.Contains(t, result.Log, "Successfully built deadbeef")
}

func TestConsumeBuildStream_WritesOutput(t *testing.T) {
	stream := `{"stream":"Step 1/8 : FROM python:3.10-slim\n"}`
	var buf bytes.Buffer

	_, err := consumeBuildStream(strings.NewReader(stream), BuildSpec{Tag: "t", Output: &buf})

	require.NoError(t, err)
	assert.Equal(t, "Step 1/8 : FROM python:3.10-slim\n", buf.String())
}

func TestConsumeBuildStream_InstallFailure(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 4/8 : RUN pip install --no-cache-dir -r requirements.txt\n"}`,
		`{"errorDetail":{"message":"The command '/bin/sh -c pip install --no-cache-dir -r requirements.txt' returned a non-zero code: 1"},"error":"non-zero code"}`,
	}, "\n")

	_, err := consumeBuildStream(strings.NewReader(stream), BuildSpec{Tag: "t"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstallFailed)

	var dErr *DockerError
	require.ErrorAs(t, err, &dErr)
	assert.Contains(t, dErr.Message, "non-zero code: 1")
}

func TestConsumeBuildStream_ManifestMissing(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 3/8 : COPY requirements.txt .\n"}`,
		`{"errorDetail":{"message":"COPY failed: file not found in build context or excluded by .dockerignore: stat requirements.txt: file does not exist"},"error":"COPY failed"}`,
	}, "\n")

	_, err := consumeBuildStream(strings.NewReader(stream), BuildSpec{Tag: "t"})

	assert.ErrorIs(t, err, ErrManifestMissing)
}

func TestConsumeBuildStream_MalformedJSON(t *testing.T) {
	_, err := consumeBuildStream(strings.NewReader("{not json"), BuildSpec{Tag: "t"})

	assert.ErrorIs(t, err, ErrBuildFailed)
}

// =============================================================================
// Error Classification Tests
// =============================================================================

func TestClassifyBuildError_BasePullDenied(t *testing.T) {
	err := classifyBuildError("pull access denied for python", "Step 1/8 : FROM python:3.10-slim")

	assert.ErrorIs(t, err, ErrImagePullFailed)
}

func TestClassifyBuildError_NetworkDuringInstall(t *testing.T) {
	err := classifyBuildError(
		"The command '/bin/sh -c pip install --no-cache-dir -r requirements.txt' returned a non-zero code: 1",
		"Step 4/8 : RUN pip install --no-cache-dir -r requirements.txt")

	assert.ErrorIs(t, err, ErrInstallFailed)
}

func TestClassifyBuildError_Unrecognized(t *testing.T) {
	err := classifyBuildError("something exploded", "Step 5/8 : COPY . .")

	assert.ErrorIs(t, err, ErrBuildFailed)
}
