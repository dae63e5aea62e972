package release

import (
	"io"
	"os"

	bzip2 "github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

func bzip2Reader(f *os.File) (io.Reader, func() error, error) {
	r, err := bzip2.NewReader(f, nil)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}

func xzReader(f *os.File) (io.Reader, func() error, error) {
	r, err := xz.NewReader(f)
	if err != nil {
		return nil, nil, err
	}
	// xz.Reader has no Close; the underlying file is closed by the caller.
	return r, nil, nil
}

func bzip2Writer(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
}

func xzWriter(w io.Writer) (io.WriteCloser, error) {
	return xz.NewWriter(w)
}
