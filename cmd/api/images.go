package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"acessolivre/internal/objectstore"
)

const (
	maxUploadBytes = 15 * 1024 * 1024
	maxImages      = 5
)

// parseForm reads a multipart request and, when field is not empty, decodes
// the JSON document stored in that form value into data.
func (app *application) parseForm(w http.ResponseWriter, r *http.Request, field string, data any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}

	if field == "" {
		return nil
	}

	raw := r.FormValue(field)
	if raw == "" {
		return fmt.Errorf("form field %q is required", field)
	}
	if err := json.Unmarshal([]byte(raw), data); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}

	return Validate.Struct(data)
}

// formFiles opens every file sent under field. The returned closer releases
// all of them and must be called once the uploads are done.
func formFiles(r *http.Request, field string, limit int) ([]objectstore.File, func(), error) {
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File[field]
	}
	if limit > 0 && len(headers) > limit {
		return nil, func() {}, fmt.Errorf("maximum %d images allowed", limit)
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]objectstore.File, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open file: %w", err)
		}
		opened = append(opened, file)

		f, err := sniff(fh, file)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		files = append(files, f)
	}
	return files, closeAll, nil
}

// formFile is formFiles for a single optional file. ok is false when the
// field was not sent.
func formFile(r *http.Request, field string) (objectstore.File, func(), bool, error) {
	files, closer, err := formFiles(r, field, 1)
	if err != nil {
		return objectstore.File{}, closer, false, err
	}
	if len(files) == 0 {
		return objectstore.File{}, closer, false, nil
	}
	return files[0], closer, true, nil
}

// sniff detects the content type from the first bytes instead of trusting
// the client supplied header.
func sniff(fh *multipart.FileHeader, file io.Reader) (objectstore.File, error) {
	br := bufio.NewReaderSize(file, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return objectstore.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	return objectstore.File{
		Name:        fh.Filename,
		ContentType: http.DetectContentType(head),
		Size:        fh.Size,
		Body:        br,
	}, nil
}
