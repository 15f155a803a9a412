package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
)

const downloadChunkSize = 64 * 1024

func (h *handlers) uploadCoverArt(c *gin.Context) {
	h.upload(c, catalogdb.MediaTypeCoverArt)
}

func (h *handlers) uploadAudioFile(c *gin.Context) {
	h.upload(c, catalogdb.MediaTypeAudioFile)
}

// upload implements the client-streaming contract as a multipart POST,
// gin's native idiom for file intake rather than a hand-rolled chunked
// reader. Only the "file" part is read; the filename comes from that part's
// header. No owner id is read, and the stored media is not attached to any
// collection or project by this handler.
func (h *handlers) upload(c *gin.Context, mediaType string) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	mf, err := h.deps.Media.Store(data, fileHeader.Filename, mediaType, mimeType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, mf)
}

// downloadMedia streams the blob's metadata as a header frame followed by
// the body, which a raw RPC transport would otherwise frame as a metadata
// message plus 64 KiB chunk messages.
func (h *handlers) downloadMedia(c *gin.Context) {
	mf, reader, err := h.deps.Media.Open(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer reader.Close()

	c.Header("X-Media-Checksum", mf.Checksum)
	c.Header("X-Media-Original-Filename", mf.OriginalFilename)
	c.Header("Content-Length", strconv.FormatInt(mf.FileSizeBytes, 10))
	c.Data(http.StatusOK, mf.MimeType, nil)

	buf := make([]byte, downloadChunkSize)
	for {
		n, rerr := reader.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			return
		}
	}
}

func (h *handlers) deleteMedia(c *gin.Context) {
	if err := h.deps.Media.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
