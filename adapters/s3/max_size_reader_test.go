package s3_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dexhub/adapters/s3"
)

func TestMaxSizeReader(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		maxSize    int64
		wantN      int
		wantErr    bool
		wantErrMsg string
	}{
		{
			name:    "讀取小於限制的內容",
			input:   []byte("hello"),
			maxSize: 10,
			wantN:   5,
			wantErr: false,
		},
		{
			name:       "讀取超過限制的內容",
			input:      []byte("hello world"),
			maxSize:    5,
			wantN:      5,
			wantErr:    true,
			wantErrMsg: "reach limit of 5 bytes",
		},
		{
			name:    "剛好等於限制的內容",
			input:   []byte("hello"),
			maxSize: 5,
			wantN:   5,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := s3.NewMaxSizeReader(bytes.NewReader(tt.input), tt.maxSize)
			buf := make([]byte, len(tt.input)+1)
			n, err := reader.Read(buf)

			assert.Equal(t, tt.wantN, n)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantErrMsg, err.Error())
			} else {
				assert.True(t, err == nil || err == io.EOF)
			}
		})
	}

	t.Run("分段讀取超過限制", func(t *testing.T) {
		reader := s3.NewMaxSizeReader(strings.NewReader("abcdefgh"), 6)
		buf := make([]byte, 4)

		n, err := reader.Read(buf)
		assert.Equal(t, 4, n)
		assert.NoError(t, err)

		n, err = reader.Read(buf)
		assert.Equal(t, 2, n)
		var limitErr *s3.ReachLimitError
		assert.ErrorAs(t, err, &limitErr)
		assert.Equal(t, int64(6), limitErr.MaxBytes)
	})
}
