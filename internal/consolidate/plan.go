package consolidate

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultConsolidatedPackage names the package that subsumes every legacy package.
	DefaultConsolidatedPackage = "paws_common"

	workspaceAttributeKeyConstant          = "workspace"
	consolidatedPackageMissingMessage      = "consolidated package name is required"
	legacyPackagesMissingMessage           = "at least one legacy package is required"
	legacyPackageBlankMessage              = "legacy package names must not be blank"
	consolidatedPackageIsLegacyTemplate    = "consolidated package %q is also listed as a legacy package"
	legacyPackageBlankPositionTemplate     = "%w (position %d)"
	consolidatedPackageIsLegacyErrorFormat = "%w: " + consolidatedPackageIsLegacyTemplate
)

var (
	// ErrConsolidatedPackageMissing reports a plan without a consolidated package name.
	ErrConsolidatedPackageMissing = errors.New(consolidatedPackageMissingMessage)
	// ErrLegacyPackagesMissing reports a plan without legacy packages.
	ErrLegacyPackagesMissing = errors.New(legacyPackagesMissingMessage)
	// ErrLegacyPackageBlank reports a blank legacy package name.
	ErrLegacyPackageBlank = errors.New(legacyPackageBlankMessage)
	// ErrConsolidatedPackageIsLegacy reports a consolidated package that would be removed again on the next run.
	ErrConsolidatedPackageIsLegacy = errors.New("consolidated package conflicts with legacy packages")
)

var defaultLegacyPackages = [...]string{
	"paws_spinner",
	"paws_display",
	"paws_select",
	"paws_stream",
	"paws_walker",
	"paws_tracker",
	"paws_json_repair",
	"paws_template",
	"paws_snaps",
	"paws_test_kit",
	"paws_fs",
}

// DefaultLegacyPackages returns a copy of the package names merged into DefaultConsolidatedPackage.
func DefaultLegacyPackages() []string {
	legacyPackages := make([]string, len(defaultLegacyPackages))
	copy(legacyPackages, defaultLegacyPackages[:])
	return legacyPackages
}

// ConsolidationPlan pairs the ordered legacy package set with the package replacing it.
// A plan is immutable once constructed and safe to share.
type ConsolidationPlan struct {
	legacyPackages      []string
	legacyPackageLookup map[string]struct{}
	consolidatedPackage string
}

// DefaultConsolidationPlan returns the plan built from the compiled-in package names.
func DefaultConsolidationPlan() ConsolidationPlan {
	plan, _ := NewConsolidationPlan(DefaultLegacyPackages(), DefaultConsolidatedPackage)
	return plan
}

// NewConsolidationPlan validates the provided names and builds a plan. Duplicate
// legacy names are collapsed while keeping their first position.
func NewConsolidationPlan(legacyPackages []string, consolidatedPackage string) (ConsolidationPlan, error) {
	trimmedConsolidatedPackage := strings.TrimSpace(consolidatedPackage)

	var validationErrors []error
	if len(trimmedConsolidatedPackage) == 0 {
		validationErrors = append(validationErrors, ErrConsolidatedPackageMissing)
	}
	if len(legacyPackages) == 0 {
		validationErrors = append(validationErrors, ErrLegacyPackagesMissing)
	}

	orderedPackages := make([]string, 0, len(legacyPackages))
	lookup := make(map[string]struct{}, len(legacyPackages))
	for packageIndex, legacyPackage := range legacyPackages {
		trimmedPackage := strings.TrimSpace(legacyPackage)
		if len(trimmedPackage) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf(legacyPackageBlankPositionTemplate, ErrLegacyPackageBlank, packageIndex))
			continue
		}
		if trimmedPackage == trimmedConsolidatedPackage {
			validationErrors = append(validationErrors, fmt.Errorf(consolidatedPackageIsLegacyErrorFormat, ErrConsolidatedPackageIsLegacy, trimmedPackage))
			continue
		}
		if _, alreadyListed := lookup[trimmedPackage]; alreadyListed {
			continue
		}
		lookup[trimmedPackage] = struct{}{}
		orderedPackages = append(orderedPackages, trimmedPackage)
	}

	if len(validationErrors) > 0 {
		return ConsolidationPlan{}, errors.Join(validationErrors...)
	}

	return ConsolidationPlan{
		legacyPackages:      orderedPackages,
		legacyPackageLookup: lookup,
		consolidatedPackage: trimmedConsolidatedPackage,
	}, nil
}

// LegacyPackages returns a copy of the ordered legacy package names.
func (plan ConsolidationPlan) LegacyPackages() []string {
	legacyPackages := make([]string, len(plan.legacyPackages))
	copy(legacyPackages, plan.legacyPackages)
	return legacyPackages
}

// ConsolidatedPackage returns the name of the replacement package.
func (plan ConsolidationPlan) ConsolidatedPackage() string {
	return plan.consolidatedPackage
}

// IsLegacyPackage reports whether packageName is merged away by the plan.
func (plan ConsolidationPlan) IsLegacyPackage(packageName string) bool {
	_, isLegacy := plan.legacyPackageLookup[packageName]
	return isLegacy
}

// IsZero reports whether the plan was never constructed.
func (plan ConsolidationPlan) IsZero() bool {
	return len(plan.consolidatedPackage) == 0
}

// ReplacementEntry returns a fresh dependency specification deferring to the
// workspace-level declaration.
func (plan ConsolidationPlan) ReplacementEntry() map[string]any {
	return map[string]any{workspaceAttributeKeyConstant: true}
}
