package streamutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountingReaderCountsBytesRead(t *testing.T) {
	cr := NewCountingReader(bytes.NewReader([]byte("hello world")))
	data, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
	require.Equal(t, int64(11), cr.Count())
}

func TestCountingWriterCountsBytesWritten(t *testing.T) {
	var buf bytes.Buffer
	cw := NewCountingWriter(&buf)
	n, err := cw.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, int64(3), cw.Count())
}

func TestProgressReaderThrottlesReports(t *testing.T) {
	total := int64(100)
	data := bytes.Repeat([]byte("a"), int(total))

	var reports []int64
	pr := NewProgressReader(bytes.NewReader(data), total, 25, func(transferred, _ int64) {
		reports = append(reports, transferred)
	})

	buf := make([]byte, 10)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	require.Equal(t, total, pr.Transferred())
	require.NotEmpty(t, reports)
	require.Less(t, len(reports), 11)
}

func TestProgressReaderWithoutTotalReportsEveryRead(t *testing.T) {
	data := []byte("abcdef")
	var reports int
	pr := NewProgressReader(bytes.NewReader(data), 0, 0, func(int64, int64) { reports++ })

	buf := make([]byte, 2)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
	}
	require.Equal(t, 4, reports)
}
