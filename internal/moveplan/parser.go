package moveplan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/celder/histmove/internal/shared"
)

const (
	fileSystemNotConfiguredMessageConstant = "file system not configured"
	emptyPlanMessageConstant               = "relocation map contains no move requests"
	readMapFileTemplateConstant            = "read relocation map %s: %w"
	rowErrorTemplateConstant               = "line %d: %v"
	fieldCountTemplateConstant             = "expected %d pipe-delimited fields, found %d"
	fieldErrorTemplateConstant             = "%s: %w"
	sourceRepositoryFieldLabelConstant     = "source repository"
	sourcePathFieldLabelConstant           = "source path"
	destinationRepositoryFieldLabel        = "destination repository"
	destinationPathFieldLabelConstant      = "destination path"
	rowFieldSeparatorConstant              = "|"
	commentPrefixConstant                  = "#"
	lineSeparatorConstant                  = "\n"
	expectedRowFieldCountConstant          = 4
)

// Sentinel errors reported while constructing and running the parser.
var (
	// ErrFileSystemNotConfigured indicates the parser was constructed without a file system.
	ErrFileSystemNotConfigured = errors.New(fileSystemNotConfiguredMessageConstant)
	// ErrEmptyPlan indicates a relocation map that yields no move requests.
	ErrEmptyPlan = errors.New(emptyPlanMessageConstant)
)

// RowError describes one malformed relocation map row.
type RowError struct {
	LineNumber int
	Cause      error
}

// Error formats the row failure with its line number.
func (rowError RowError) Error() string {
	return fmt.Sprintf(rowErrorTemplateConstant, rowError.LineNumber, rowError.Cause)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As inspection.
func (rowError RowError) Unwrap() error {
	return rowError.Cause
}

// Parser turns relocation map files into plans.
type Parser struct {
	fileSystem shared.FileSystem
}

// NewParser validates collaborators and assembles a Parser.
func NewParser(fileSystem shared.FileSystem) (*Parser, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	return &Parser{fileSystem: fileSystem}, nil
}

// Parse reads the relocation map at the provided path and builds a plan.
//
// Malformed rows are accumulated rather than failing fast so that every
// problem is reported at once; any malformed row aborts the run, as does a
// map that yields no requests at all.
func (parser *Parser) Parse(mapFilePath string) (*Plan, error) {
	mapContent, readError := parser.fileSystem.ReadFile(mapFilePath)
	if readError != nil {
		return nil, fmt.Errorf(readMapFileTemplateConstant, mapFilePath, readError)
	}
	return parser.parseRows(string(mapContent))
}

func (parser *Parser) parseRows(mapContent string) (*Plan, error) {
	plan := newPlan()
	var rowErrors []error

	for lineIndex, rawLine := range strings.Split(mapContent, lineSeparatorConstant) {
		lineNumber := lineIndex + 1
		trimmedLine := strings.TrimSpace(rawLine)
		if len(trimmedLine) == 0 || strings.HasPrefix(trimmedLine, commentPrefixConstant) {
			continue
		}

		request, rowError := parseRow(trimmedLine)
		if rowError != nil {
			rowErrors = append(rowErrors, RowError{LineNumber: lineNumber, Cause: rowError})
			continue
		}
		plan.addRequest(request)
	}

	if len(rowErrors) > 0 {
		return nil, errors.Join(rowErrors...)
	}
	if plan.IsEmpty() {
		return nil, ErrEmptyPlan
	}
	return plan, nil
}

func parseRow(rowText string) (MoveRequest, error) {
	rowFields := strings.Split(rowText, rowFieldSeparatorConstant)
	if len(rowFields) != expectedRowFieldCountConstant {
		return MoveRequest{}, fmt.Errorf(fieldCountTemplateConstant, expectedRowFieldCountConstant, len(rowFields))
	}

	sourceRepository, sourceRepositoryError := shared.NewRepositoryPath(rowFields[0])
	if sourceRepositoryError != nil {
		return MoveRequest{}, fmt.Errorf(fieldErrorTemplateConstant, sourceRepositoryFieldLabelConstant, sourceRepositoryError)
	}
	sourcePath, sourcePathError := shared.NewSubdirectoryPath(rowFields[1])
	if sourcePathError != nil {
		return MoveRequest{}, fmt.Errorf(fieldErrorTemplateConstant, sourcePathFieldLabelConstant, sourcePathError)
	}
	destinationRepository, destinationRepositoryError := shared.NewRepositoryPath(rowFields[2])
	if destinationRepositoryError != nil {
		return MoveRequest{}, fmt.Errorf(fieldErrorTemplateConstant, destinationRepositoryFieldLabel, destinationRepositoryError)
	}
	destinationPath, destinationPathError := shared.NewSubdirectoryPath(rowFields[3])
	if destinationPathError != nil {
		return MoveRequest{}, fmt.Errorf(fieldErrorTemplateConstant, destinationPathFieldLabelConstant, destinationPathError)
	}

	return MoveRequest{
		SourceRepository:      sourceRepository,
		SourcePath:            sourcePath,
		DestinationRepository: destinationRepository,
		DestinationPath:       destinationPath,
	}, nil
}
