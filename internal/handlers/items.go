package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/media"
	"wardrobe-storage/internal/mediatypes"
)

var apiLog = logging.Component("api")

// UploadImage stores the multipart "file" field as the image of item {id}.
// The item row is created when it does not exist yet, using the optional
// "name" and "category" fields.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if err := media.ValidateItemID(itemID); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "multipart field \"file\" is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	staged, size, err := h.stageUpload(file, header.Filename, header.Header.Get("Content-Type"))
	if staged != "" {
		defer func() {
			if _, err := filesystem.RemoveFile(staged); err != nil {
				apiLog.Warn("failed to remove staged upload %s: %v", staged, err)
			}
		}()
	}
	if err != nil {
		apiLog.Error("failed to stage upload for item %s: %v", itemID, err)
		writeJSONError(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}

	asset := media.Asset{
		ID:       filepath.Base(staged),
		URI:      staged,
		FileSize: size,
		MimeType: header.Header.Get("Content-Type"),
		FileName: header.Filename,
	}
	result, err := h.Ingestor.Ingest(r.Context(), itemID, asset)
	switch {
	case errors.Is(err, media.ErrInvalidItemID):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, media.ErrAssetUnreadable), errors.Is(err, media.ErrImageUndecodable):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		apiLog.Error("ingestion failed for item %s: %v", itemID, err)
		writeJSONError(w, "failed to store image", http.StatusInternalServerError)
		return
	}

	if err := h.linkItem(r, itemID, result); err != nil {
		apiLog.Error("stored image for item %s but failed to update item: %v", itemID, err)
		writeJSONError(w, "failed to update item", http.StatusInternalServerError)
		return
	}

	h.invalidateReports()
	writeJSON(w, http.StatusCreated, result)
}

// stageUpload copies an upload into the storage temp directory so ingestion
// reads it like any other local asset.
func (h *Handlers) stageUpload(src io.Reader, fileName, mimeType string) (string, int64, error) {
	tempDir := h.Resolver.ToAbsolute(h.Layout.Temp)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", 0, err
	}

	ext := mediatypes.SafeExtension(fileName, "", mimeType)
	staged := filepath.Join(tempDir, fmt.Sprintf("upload-%s.%s", uuid.NewString(), ext))

	f, err := os.OpenFile(staged, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return staged, n, err
}

// linkItem points the item row at the stored image and clears its missing
// flag.
func (h *Handlers) linkItem(r *http.Request, itemID string, res *media.Result) error {
	ctx := r.Context()
	missing := false
	patch := database.ImageStatePatch{
		OriginalImageURI:  &res.OriginalPath,
		ThumbnailImageURI: &res.ThumbnailPath,
		IsImageMissing:    &missing,
	}

	err := h.DB.UpdateImageState(ctx, itemID, patch)
	if !errors.Is(err, database.ErrItemNotFound) {
		return err
	}
	return h.DB.UpsertItem(ctx, database.Item{
		ID:                itemID,
		Name:              r.FormValue("name"),
		Category:          r.FormValue("category"),
		OriginalImageURI:  res.OriginalPath,
		ThumbnailImageURI: res.ThumbnailPath,
	})
}

// GetImage serves the display image of item {id}: the thumbnail when one
// exists, falling back to the original and legacy item fields.
// ?variant=original serves the stored original instead.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if err := media.ValidateItemID(itemID); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var path string
	if r.URL.Query().Get("variant") == "original" {
		entry, ok, err := h.Registry.Get(r.Context(), itemID)
		if err != nil {
			writeJSONError(w, "failed to read registry", http.StatusInternalServerError)
			return
		}
		if ok {
			if abs := h.Resolver.ToAbsolute(entry.OriginalPath); fileUsable(abs) {
				path = abs
			}
		}
	} else {
		resolved, err := h.Validator.ResolveDisplayPath(r.Context(), itemID)
		if err != nil {
			apiLog.Error("failed to resolve image for item %s: %v", itemID, err)
			writeJSONError(w, "failed to resolve image", http.StatusInternalServerError)
			return
		}
		path = resolved
	}

	if path == "" {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mediatypes.GetMimeType(filepath.Ext(path)))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func fileUsable(path string) bool {
	_, ok := filesystem.NonEmptyFileSize(path)
	return ok
}

// DeleteImage removes the stored image of item {id} and clears the item's
// image fields and missing flag. The item row itself is kept.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	freed, err := h.Ingestor.Remove(r.Context(), itemID)
	if errors.Is(err, media.ErrInvalidItemID) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		apiLog.Error("failed to remove image for item %s: %v", itemID, err)
		writeJSONError(w, "failed to remove image", http.StatusInternalServerError)
		return
	}

	empty, missing := "", false
	err = h.DB.UpdateImageState(r.Context(), itemID, database.ImageStatePatch{
		OriginalImageURI:  &empty,
		ThumbnailImageURI: &empty,
		IsImageMissing:    &missing,
	})
	if err != nil && !errors.Is(err, database.ErrItemNotFound) {
		apiLog.Warn("failed to clear image fields of item %s: %v", itemID, err)
	}

	h.invalidateReports()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"itemId":     itemID,
		"freedBytes": freed,
	})
}
