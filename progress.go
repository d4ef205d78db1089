package ftp

import "io"

// ProgressReader wraps an io.Reader and invokes Callback after every Read
// with the cumulative byte count, so a caller can render upload progress
// without the data channel itself knowing anything about progress bars.
type ProgressReader struct {
	Reader     io.Reader
	Callback   func(bytesTransferred int64)
	total      int64
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	if n > 0 {
		p.total += int64(n)
		if p.Callback != nil {
			p.Callback(p.total)
		}
	}
	return n, err
}

// ProgressWriter is the download-side counterpart of ProgressReader.
type ProgressWriter struct {
	Writer   io.Writer
	Callback func(bytesTransferred int64)
	total    int64
}

func (p *ProgressWriter) Write(b []byte) (int, error) {
	n, err := p.Writer.Write(b)
	if n > 0 {
		p.total += int64(n)
		if p.Callback != nil {
			p.Callback(p.total)
		}
	}
	return n, err
}
