package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"shutterhub/internal/core"
)

// statusRecord covers every shape the upload stream emits.
type statusRecord struct {
	Error      bool   `json:"error"`
	File       string `json:"file"`
	FileIndex  int    `json:"fileIndex"`
	TotalFiles int    `json:"totalFiles"`
	Progress   int    `json:"progress"`
	Message    string `json:"message"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	eventID := flag.String("event", "", "event id (required)")
	batch := flag.String("batch", "", "batch name (required)")
	appendMode := flag.Bool("append", false, "append to an existing batch")
	uploader := flag.String("uploader", "", "uploader phone number")
	flag.Parse()

	if *eventID == "" || *batch == "" {
		fmt.Fprintln(os.Stderr, "usage: shutter -event <id> -batch <name> [-append] [-uploader <phone>] <paths...>")
		os.Exit(1)
	}

	parsedPaths, err := core.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	photos, err := core.CollectPhotos(parsedPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error collecting photos: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploading %d photos to batch %q\n", len(photos), *batch)

	if err := upload(*server, *eventID, *batch, *uploader, *appendMode, photos); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// upload posts the photos as one multipart request and renders the status
// stream until the server closes it.
func upload(server, eventID, batch, uploader string, appendMode bool, photos []core.PhotoFile) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, batch, photos))
	}()

	url := fmt.Sprintf("%s/api/events/%s/photos", strings.TrimRight(server, "/"), eventID)
	if appendMode {
		url += "/append"
	}

	req, err := http.NewRequest(http.MethodPost, url, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if uploader != "" {
		req.Header.Set("X-Uploader-Phone", uploader)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			return fmt.Errorf("server rejected upload: %s", body.Error)
		}
		return fmt.Errorf("server rejected upload: HTTP %d", resp.StatusCode)
	}

	return renderStream(resp.Body)
}

func writeForm(mw *multipart.Writer, batch string, photos []core.PhotoFile) error {
	if err := mw.WriteField("batch_name", batch); err != nil {
		return err
	}

	for _, photo := range photos {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, photo.Name))
		header.Set("Content-Type", core.ContentType(photo.Path))

		part, err := mw.CreatePart(header)
		if err != nil {
			return err
		}

		f, err := os.Open(photo.Path)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	return mw.Close()
}

func renderStream(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var failed int
	var complete bool

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var rec statusRecord
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
			continue
		}

		switch {
		case rec.Error:
			failed++
			fmt.Printf("✗ %s: %s\n", rec.File, rec.Message)
		case rec.File != "":
			fmt.Printf("  [%d/%d] %s %d%%\n", rec.FileIndex, rec.TotalFiles, rec.File, rec.Progress)
		case rec.Message != "":
			complete = true
			fmt.Printf("✓ %s\n", rec.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}

	if !complete {
		return fmt.Errorf("upload did not complete (%d failed)", failed)
	}
	if failed > 0 {
		fmt.Printf("Done with %d failed file(s)\n", failed)
	}
	return nil
}
