package jobs

import (
	"fmt"
	"path"
	"strings"
)

func (b *Builder) buildVector(gb *graphBuilder, dataset, version string, src *VectorSource) {
	opts := src.Options
	localFile := path.Base(src.URI)

	layers := opts.Layers
	if len(layers) == 0 {
		layers = []string{strings.TrimSuffix(localFile, path.Ext(localFile))}
	}

	schema := gb.add("import_vector_data", ProfileGDALImport, nil,
		"create_vector_schema.sh", "-d", dataset, "-v", version,
		"-s", src.URI, "-l", layers[0], "-f", localFile,
	)

	var loads []string
	for i, layer := range layers {
		loads = append(loads, gb.add(
			fmt.Sprintf("load_vector_data_%d", i), ProfileGDALImport, []string{schema},
			"load_vector_data.sh", "-d", dataset, "-v", version,
			"-s", src.URI, "-l", layer, "-f", localFile,
		))
	}

	enrich := gb.add("enrich_gfw_attributes", ProfilePostgresClient, loads,
		"add_gfw_fields.sh", "-d", dataset, "-v", version,
	)

	geostoreParents := addIndexJobs(gb, dataset, version, opts.Indices, []string{enrich})
	if len(geostoreParents) == 0 {
		geostoreParents = []string{enrich}
	}
	gb.add("inherit_from_geostore", ProfilePostgresClient, geostoreParents,
		"inherit_geostore.sh", "-d", dataset, "-v", version,
	)
}
