package metadata

import (
	"strings"
)

const (
	specNameFieldPrefixConstant     = "Name:"
	specPackageDirectiveConstant    = "%package"
	specExplicitNameOptionConstant  = "-n"
	subpackageNameJoinerConstant    = "-"
	specLineSeparatorConstant       = "\n"
	specCommentPrefixConstant       = "#"
)

// SpecDescriptor summarizes the package names one build descriptor declares:
// the primary package name and every subpackage. Subpackages declared with an
// explicit name option keep that name verbatim; suffix-form declarations are
// resolved against the primary name.
type SpecDescriptor struct {
	PackageName     string
	SubpackageNames []string
}

// ParseSpecDescriptor extracts the declared package names from build
// descriptor content. Descriptors without a name field yield an empty
// primary name.
func ParseSpecDescriptor(descriptorContent string) SpecDescriptor {
	var descriptor SpecDescriptor
	var suffixDeclarations []string

	for _, rawLine := range strings.Split(descriptorContent, specLineSeparatorConstant) {
		trimmedLine := strings.TrimSpace(rawLine)
		if strings.HasPrefix(trimmedLine, specCommentPrefixConstant) {
			continue
		}
		if strings.HasPrefix(trimmedLine, specNameFieldPrefixConstant) && len(descriptor.PackageName) == 0 {
			descriptor.PackageName = strings.TrimSpace(strings.TrimPrefix(trimmedLine, specNameFieldPrefixConstant))
			continue
		}
		if !strings.HasPrefix(trimmedLine, specPackageDirectiveConstant) {
			continue
		}
		directiveFields := strings.Fields(strings.TrimPrefix(trimmedLine, specPackageDirectiveConstant))
		if len(directiveFields) == 0 {
			continue
		}
		if directiveFields[0] == specExplicitNameOptionConstant {
			if len(directiveFields) > 1 {
				descriptor.SubpackageNames = append(descriptor.SubpackageNames, directiveFields[1])
			}
			continue
		}
		suffixDeclarations = append(suffixDeclarations, directiveFields[0])
	}

	for _, suffixDeclaration := range suffixDeclarations {
		descriptor.SubpackageNames = append(descriptor.SubpackageNames, descriptor.PackageName+subpackageNameJoinerConstant+suffixDeclaration)
	}
	return descriptor
}
