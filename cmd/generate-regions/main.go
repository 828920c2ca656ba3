package main

/*

> ./bin/generate-regions -target-bucket-uri file:///usr/local/data/shapefiles uganda

*/

import (
	"context"
	"log"

	"github.com/whosonfirst/go-openbuildings/app/generateregions"
	_ "gocloud.dev/blob/fileblob"
)

func main() {

	ctx := context.Background()
	logger := log.Default()

	err := generateregions.Run(ctx, logger)

	if err != nil {
		logger.Fatalf("Failed to run application, %v", err)
	}
}
