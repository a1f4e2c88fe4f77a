package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"
)

func (b *Builder) buildTable(gb *graphBuilder, dataset, version string, src *TableSource) {
	opts := src.Options

	schema, err := json.Marshal(opts.TableSchema)
	if err != nil {
		gb.fail(fmt.Errorf("encode table schema: %w", err))
		return
	}

	command := []string{"create_tabular_schema.sh", "-d", dataset, "-v", version, "-s", src.URIs[0], "-m", string(schema)}
	if opts.Partitions != nil {
		command = append(command, "-p", opts.Partitions.PartitionType, "-c", opts.Partitions.PartitionColumn)
	}
	createTable := gb.add("create_table", ProfilePostgresClient, nil, command...)

	var chunks []string
	if opts.Partitions != nil {
		chunks, err = partitionChunks(opts.Partitions, b.chunkSize)
		if err != nil {
			gb.fail(err)
			return
		}
	}

	loadParents := []string{createTable}
	for i, c := range chunks {
		loadParents = append(loadParents, gb.add(
			fmt.Sprintf("create_partitions_%d", i), ProfilePostgresClient, []string{createTable},
			"create_partitions.sh", "-d", dataset, "-v", version,
			"-p", opts.Partitions.PartitionType, "-P", c,
		))
	}

	var loads []string
	for i, uri := range src.URIs {
		loads = append(loads, gb.add(
			fmt.Sprintf("load_data_%d", i), ProfilePostgresClient, loadParents,
			"load_tabular_data.sh", "-d", dataset, "-v", version,
			"-s", uri, "-D", escapeDelimiter(opts.Delimiter),
		))
	}

	indexParents := append([]string(nil), loads...)
	if opts.Latitude != "" && opts.Longitude != "" {
		indexParents = append(indexParents, gb.add(
			"add_point_geometry", ProfilePostgresClient, loads,
			"add_point_geometry.sh", "-d", dataset, "-v", version,
			"--lat", opts.Latitude, "--lng", opts.Longitude,
		))
	}

	clusterParents := append([]string(nil), indexParents...)
	clusterParents = append(clusterParents, addIndexJobs(gb, dataset, version, opts.Indices, indexParents)...)

	if opts.Cluster == nil {
		return
	}
	if opts.Partitions == nil {
		gb.add("cluster_table", ProfilePostgresClient, clusterParents,
			"cluster_table.sh", "-d", dataset, "-v", version,
			"-c", opts.Cluster.ColumnName, "-x", opts.Cluster.IndexType,
		)
		return
	}

	// Partition tables are clustered one after the other.
	parents := clusterParents
	for i, c := range chunks {
		name := gb.add(
			fmt.Sprintf("cluster_partitions_%d", i), ProfilePostgresClient, parents,
			"cluster_partitions.sh", "-d", dataset, "-v", version,
			"-p", opts.Partitions.PartitionType, "-P", c,
			"-c", opts.Cluster.ColumnName, "-x", opts.Cluster.IndexType,
		)
		parents = []string{name}
	}
}

func addIndexJobs(gb *graphBuilder, dataset, version string, indices []Index, parents []string) []string {
	var names []string
	for _, idx := range indices {
		names = append(names, gb.add(
			fmt.Sprintf("create_index_%s_%s", idx.ColumnName, idx.IndexType), ProfilePostgresClient, parents,
			"create_index.sh", "-d", dataset, "-v", version,
			"-c", idx.ColumnName, "-x", idx.IndexType,
		))
	}
	return names
}

// escapeDelimiter renders control characters such as TAB as escape
// sequences so they survive the batch job payload.
func escapeDelimiter(d string) string {
	q := strconv.Quote(d)
	return q[1 : len(q)-1]
}
