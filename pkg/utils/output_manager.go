package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// DataDir returns the directory holding one reporting month's extracts and
// report folders, <base>/data/<label>, creating it when needed.
func (om *OutputManager) DataDir(label string) (string, error) {
	dir := filepath.Join(om.BaseOutputDir, "data", filepath.Base(label))

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dir, nil
}

// ReportDir creates the output folder of one report inside a data directory.
func (om *OutputManager) ReportDir(dataDir, outfile string) (string, error) {
	dir := filepath.Join(dataDir, filepath.Base(outfile))

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	return dir, nil
}

// ExtractPath returns the intermediate CSV path of a named query.
func (om *OutputManager) ExtractPath(dataDir, query string) string {
	return filepath.Join(dataDir, filepath.Base(query)+".csv")
}

// GetOutputFilePath generates a full path for an output file in a report folder
func (om *OutputManager) GetOutputFilePath(dataDir, outfile, fileName string) (string, error) {
	dir, err := om.ReportDir(dataDir, outfile)
	if err != nil {
		return "", err
	}

	// Clean the filename to remove any path separators
	cleanFileName := filepath.Base(fileName)

	return filepath.Join(dir, cleanFileName), nil
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".xlsx", ".xls":
		return "excel"
	case ".png":
		return "png"
	default:
		return "unknown"
	}
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}
