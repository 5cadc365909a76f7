package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 10 * 1024 * 1024

var spreadsheetExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
}

// importSpreadsheetHandler takes a multipart "file" (.xlsx), a JSON "mapping" of
// logical field -> header text and an optional "sheet" name.
func importSpreadsheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 10MB limit"})
			return
		}
		if !spreadsheetExtensions[strings.ToLower(filepath.Ext(fileHeader.Filename))] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		var mapping workflow.ColumnMapping
		if err := json.Unmarshal([]byte(c.PostForm("mapping")), &mapping); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mapping must be a JSON object"})
			return
		}

		data, err := readUpload(fileHeader)
		if err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sheet, err := workflow.ReadDriverSheet(bytes.NewReader(data), strings.TrimSpace(c.PostForm("sheet")), mapping)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		extra := gin.H{"sheet": sheet.Sheet}
		if config.DriverImportArchiveEnabled() {
			// archiving is a convenience copy; the import goes ahead without it
			objectKey, err := utils.ArchiveSpreadsheet(c.Request.Context(), fileHeader.Filename, data)
			if err != nil {
				logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			} else {
				extra["object_key"] = objectKey
			}
		}

		logger.WithFields(logrus.Fields{
			"file":       fileHeader.Filename,
			"sheet":      sheet.Sheet,
			"rows":       len(sheet.Rows),
			"request_id": requestID,
		}).Info("[driver.import]")

		respondImport(c, svc, sheet.Rows, extra)
	}
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fileHeader.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxUploadSizeBytes {
		return nil, errors.New("file size exceeds 10MB limit")
	}
	return data, nil
}

func logUploadError(logger *logrus.Logger, err error, provider string, requestID string) {
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"provider":   provider,
		"request_id": requestID,
	}).Error("[upload.error]")
}

func requestIDFromHeaders(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Correlation-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader("X-Request-Id")); id != "" {
		return id
	}
	return fmt.Sprintf("upload-%d", time.Now().UnixNano())
}
