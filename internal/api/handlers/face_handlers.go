package handlers

import (
	"encoding/json"
	"image"
	"io"
	"net/http"
	"time"

	"lookout/internal/core/models"
	"lookout/internal/recognition"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// analyzeTimeout bounds how long a snapshot analysis waits for the batched
// detector.
const analyzeTimeout = 2 * time.Second

// RegisterFace extracts a face embedding from an uploaded image and stores it
// as a reference template for the person. The gallery picks the new template
// up immediately.
func (h *APIHandler) RegisterFace(c *gin.Context) {
	person, ok := h.personFromPath(c)
	if !ok {
		return
	}

	img, ok := h.decodeUpload(c)
	if !ok {
		return
	}
	defer img.Close()

	cand, found := h.faces.LocateBest(img)
	if !found {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face found in image"})
		return
	}
	if cand.Quality < h.cfg.Recognition.QualityThreshold {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "face quality below threshold",
			"quality": cand.Quality,
		})
		return
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	box := cand.Box.Intersect(bounds)
	if box.Empty() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "face box outside image bounds"})
		return
	}

	crop := img.Region(box)
	defer crop.Close()

	embedding, ok := h.faces.Embed(crop)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to compute face embedding"})
		return
	}

	raw, err := json.Marshal(embedding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode embedding"})
		return
	}
	template := &models.FaceTemplate{
		PersonID:  person.ID,
		Embedding: raw,
		Embedder:  h.cfg.Recognition.Embedder,
		Quality:   cand.Quality,
	}
	if err := h.repo.SaveTemplate(template); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save face template"})
		return
	}

	h.gallery.Add(recognition.Entry{
		PersonID:  person.PersonID,
		Name:      person.Name,
		Embedding: embedding,
	})
	log.Infof("Registered face template for %s (quality %.2f)", person.Name, cand.Quality)

	c.JSON(http.StatusCreated, gin.H{
		"message":  "face registered",
		"face_box": [4]int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y},
		"quality":  cand.Quality,
	})
}

// AnalyzeSnapshot runs an uploaded image through the batched detection path
// and returns the filtered person detections.
func (h *APIHandler) AnalyzeSnapshot(c *gin.Context) {
	img, ok := h.decodeUpload(c)
	if !ok {
		return
	}

	// The dispatcher hands the Mat to the detector, which owns it from here.
	frameID, reply, ok := h.dispatch.submit(img)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "detection queue is full"})
		return
	}

	select {
	case res := <-reply:
		c.JSON(http.StatusOK, gin.H{
			"detections": res.Detections,
			"count":      len(res.Detections),
		})
	case <-time.After(analyzeTimeout):
		h.dispatch.cancel(frameID)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "detection timed out"})
	}
}

// decodeUpload reads the multipart "file" field into a Mat, writing the error
// response itself when that fails. The caller owns the returned Mat.
func (h *APIHandler) decodeUpload(c *gin.Context) (gocv.Mat, bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded or invalid form data"})
		return gocv.Mat{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image data"})
		return gocv.Mat{}, false
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || img.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is not a decodable image"})
		return gocv.Mat{}, false
	}
	return img, true
}
