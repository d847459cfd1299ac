package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

func TestRunReportXLSX(t *testing.T) {
	results := []pipeline.Result{
		{
			Path:        "/in/a.pdf",
			Fingerprint: entity.Fingerprint("aaaa"),
			Artifact:    entity.NewArtifact(constants.FormatMarkdown, "# a"),
			Attempts:    2,
			Duration:    1500 * time.Millisecond,
		},
		{Path: "/in/b.pdf", Fingerprint: "bbbb", Cached: true},
		{
			Path: "/in/c.pdf",
			Err:  &common.JobError{Kind: constants.KindAuthentication, Path: "/in/c.pdf", Backend: "llamaparse", Err: assert.AnError},
		},
	}
	rows := []Row{
		RowFromResult(results[0], "/out/a.pdf.md"),
		RowFromResult(results[1], "/out/b.pdf.md"),
		RowFromResult(results[2], ""),
	}

	b, err := NewService(nil).RunReportXLSX(context.Background(), "llamaparse", rows, pipeline.Summarize(results))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(resultsSheet)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "Path", got[0][0])
	assert.Equal(t, []string{"/in/a.pdf", "PARSED", "", "no", "2", "aaaa", "/out/a.pdf.md", "1500"}, got[1][:8])
	assert.Equal(t, "CACHED", got[2][1])
	assert.Equal(t, "AUTHENTICATION_FAILED", got[3][1])
	assert.Equal(t, "AUTHENTICATION_FAILED", got[3][2])
	assert.True(t, strings.Contains(got[3][8], "llamaparse"))

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Backend", "llamaparse"}, summary[0])
	assert.Equal(t, []string{"Total", "3"}, summary[1])
	assert.Equal(t, []string{"Failed", "1"}, summary[5])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "a", truncate("abcdef", 1))
}
