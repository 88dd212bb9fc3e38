package visual

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/models"
)

type stubVision struct {
	response string
	err      error
}

func (s *stubVision) AnalyzeImage(ctx context.Context, png []byte, prompt string) (string, error) {
	return s.response, s.err
}

func newAnalyzer(response string, err error) *Analyzer {
	return NewAnalyzer(&stubVision{response: response, err: err}, common.DefaultPrompts(), common.GetLogger())
}

func TestFindDownloadElements(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		a := newAnalyzer(`{"elements": [{"text": "申請書ダウンロード", "file_type": "pdf", "x": 400, "y": 300, "confidence": "high", "reason": "labeled PDF link"}]}`, nil)

		elements := a.FindDownloadElements(context.Background(), []byte{1})
		require.Len(t, elements, 1)
		assert.Equal(t, "申請書ダウンロード", elements[0].Text)
		assert.Equal(t, models.FileTypePDF, elements[0].FileType)
		assert.Equal(t, 400, elements[0].X)
	})

	t.Run("code fenced json", func(t *testing.T) {
		a := newAnalyzer("```json\n{\"elements\": [{\"text\": \"様式\", \"file_type\": \"excel\", \"x\": 100, \"y\": 200, \"confidence\": \"medium\", \"reason\": \"\"}]}\n```", nil)

		elements := a.FindDownloadElements(context.Background(), []byte{1})
		require.Len(t, elements, 1)
		assert.Equal(t, models.FileTypeExcel, elements[0].FileType)
	})

	t.Run("coordinates clamped to viewport", func(t *testing.T) {
		a := newAnalyzer(`{"elements": [{"text": "form", "file_type": "pdf", "x": 5000, "y": -10, "confidence": "low", "reason": ""}]}`, nil)

		elements := a.FindDownloadElements(context.Background(), []byte{1})
		require.Len(t, elements, 1)
		assert.Equal(t, 1280, elements[0].X)
		assert.Equal(t, 0, elements[0].Y)
	})

	t.Run("empty element list", func(t *testing.T) {
		a := newAnalyzer(`{"elements": []}`, nil)
		assert.Empty(t, a.FindDownloadElements(context.Background(), []byte{1}))
	})

	t.Run("vision failure degrades to empty", func(t *testing.T) {
		a := newAnalyzer("", errors.New("model unavailable"))
		assert.Empty(t, a.FindDownloadElements(context.Background(), []byte{1}))
	})

	t.Run("unparseable response degrades to empty", func(t *testing.T) {
		a := newAnalyzer("I could not find any download links on this page.", nil)
		assert.Empty(t, a.FindDownloadElements(context.Background(), []byte{1}))
	})

	t.Run("missing screenshot", func(t *testing.T) {
		a := newAnalyzer(`{"elements": []}`, nil)
		assert.Empty(t, a.FindDownloadElements(context.Background(), nil))
	})

	t.Run("defaults applied to sparse elements", func(t *testing.T) {
		a := newAnalyzer(`{"elements": [{"text": "link", "x": 10, "y": 10}]}`, nil)

		elements := a.FindDownloadElements(context.Background(), []byte{1})
		require.Len(t, elements, 1)
		assert.Equal(t, models.FileTypeUnknown, elements[0].FileType)
		assert.Equal(t, models.ConfidenceLow, elements[0].Confidence)
	})
}

func TestVerifyPageType(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		expected PageType
	}{
		{"application json", `{"page_type": "application", "reason": "form fields visible"}`, nil, PageTypeApplication},
		{"error json", `{"page_type": "error", "reason": "404 banner"}`, nil, PageTypeError},
		{"prose fallback", "This looks like a download page with several files.", nil, PageTypeDownload},
		{"vision failure", "", errors.New("timeout"), PageTypeGeneric},
		{"unknown type in json", `{"page_type": "landing", "reason": "?"}`, nil, PageTypeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnalyzer(tt.response, tt.err)
			pageType, _ := a.VerifyPageType(context.Background(), []byte{1})
			assert.Equal(t, tt.expected, pageType)
		})
	}
}
