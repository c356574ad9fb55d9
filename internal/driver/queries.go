package driver

const (
	DeleteModelQuery = `
		MATCH (n {model_id: $model_id})
		DETACH DELETE n
	`

	SaveVariableQuery = `
		MERGE (v:Variable {model_id: $model_id, name: $name})
		SET v.states = $states,
			v.position = $position,
			v.fingerprint = $fingerprint,
			v.published_at = $published_at
		RETURN v.name AS name
	`

	// The child depends on the parent.
	SaveDependsOnQuery = `
		MATCH (p:Variable {model_id: $model_id, name: $parent})
		MATCH (c:Variable {model_id: $model_id, name: $child})
		MERGE (c)-[e:DEPENDS_ON]->(p)
		SET e.position = $position
		RETURN c.name AS child
	`

	SaveCPDRowsQuery = `
		MATCH (v:Variable {model_id: $model_id, name: $node})
		UNWIND $rows AS row
		MERGE (r:CPDRow {model_id: $model_id, node: $node, index: row.index})
		SET r.combination = row.combination,
			r.probabilities = row.probabilities,
			r.observed = row.observed
		MERGE (v)-[:HAS_ROW]->(r)
		RETURN count(r) AS rows
	`

	GetVariablesQuery = `
		MATCH (v:Variable {model_id: $model_id})
		OPTIONAL MATCH (v)-[e:DEPENDS_ON]->(p:Variable)
		WITH v, e, p ORDER BY e.position
		WITH v, collect(p.name) AS parents
		RETURN v.name AS name, v.states AS states, parents
		ORDER BY v.position
	`
)
