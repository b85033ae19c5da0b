// Command train_model fits a decision tree on a CSV export and writes the
// artifact the server loads at startup.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"churnserve/ml"
)

func main() {
	dataPath := flag.String("data", "", "training CSV with a header row")
	labelColumn := flag.String("label", "churn", "name of the label column")
	modelPath := flag.String("model_path", "sklearn_model.json", "model output path")
	maxDepth := flag.Int("max_depth", 10, "max tree depth")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *dataPath == "" {
		log.Fatal("-data is required")
	}

	file, err := os.Open(*dataPath)
	if err != nil {
		log.Fatal("open training data", zap.Error(err))
	}
	dataset, err := ml.ReadCSVDataset(file, *labelColumn)
	file.Close()
	if err != nil {
		log.Fatal("read training data", zap.Error(err))
	}

	train, test := dataset.Split(*testRatio)

	model := ml.NewDecisionTree(*maxDepth)
	if err := model.Train(train.Features, train.Labels); err != nil {
		log.Fatal("train model", zap.Error(err))
	}

	accuracy, precision, recall := ml.Evaluate(model, test, 1)
	log.Info("evaluation",
		zap.Int("train_rows", len(train.Features)),
		zap.Int("test_rows", len(test.Features)),
		zap.Strings("features", dataset.Names),
		zap.Float64("accuracy", accuracy),
		zap.Float64("precision", precision),
		zap.Float64("recall", recall))

	if dir := filepath.Dir(*modelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("create model dir", zap.Error(err))
		}
	}
	if err := model.Save(*modelPath); err != nil {
		log.Fatal("save model", zap.Error(err))
	}

	fmt.Printf("model saved to %s (%s)\n", *modelPath, ml.Report(accuracy, precision, recall))
}
