package consolidate

const (
	// DependenciesTableName is the manifest table holding regular dependencies.
	DependenciesTableName = "dependencies"
	// DevDependenciesTableName is the manifest table holding development dependencies.
	DevDependenciesTableName = "dev-dependencies"

	targetTableNameConstant = "target"
)

// DependencyTable maps dependency names to their specifications.
type DependencyTable = map[string]any

// ManifestDocument is a decoded manifest.
type ManifestDocument = map[string]any

var rewrittenTableNames = [...]string{DependenciesTableName, DevDependenciesTableName}

// RewriteDependencyTable removes every legacy package from table and, when at least
// one was removed, sets the consolidated package to the replacement entry. Any
// existing consolidated entry is overwritten rather than merged. A nil table is
// left alone.
func (plan ConsolidationPlan) RewriteDependencyTable(table DependencyTable) bool {
	if table == nil {
		return false
	}

	modified := false
	for _, legacyPackage := range plan.legacyPackages {
		if _, present := table[legacyPackage]; !present {
			continue
		}
		delete(table, legacyPackage)
		modified = true
	}

	if modified {
		table[plan.consolidatedPackage] = plan.ReplacementEntry()
	}

	return modified
}

// RewriteManifestDocument applies RewriteDependencyTable to the dependencies and
// dev-dependencies tables of document and returns the names of the tables that changed.
// Target-specific tables are not traversed.
func (plan ConsolidationPlan) RewriteManifestDocument(document ManifestDocument) []string {
	var rewrittenTables []string
	for _, tableName := range rewrittenTableNames {
		table, present := lookupTable(document, tableName)
		if !present {
			continue
		}
		if plan.RewriteDependencyTable(table) {
			rewrittenTables = append(rewrittenTables, tableName)
		}
	}
	return rewrittenTables
}

func lookupTable(document ManifestDocument, tableName string) (DependencyTable, bool) {
	if document == nil {
		return nil, false
	}
	rawTable, present := document[tableName]
	if !present {
		return nil, false
	}
	table, isTable := rawTable.(map[string]any)
	if !isTable {
		return nil, false
	}
	return table, true
}

func hasTargetSpecificTables(document ManifestDocument) bool {
	targets, present := lookupTable(document, targetTableNameConstant)
	return present && len(targets) > 0
}
