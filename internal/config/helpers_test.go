package config_test

import (
	"os"

	"github.com/okian/dotrep/internal/domain/model"
)

var configEnvVars = []string{
	"DOTREP_CONFIG",
	"DOTREP_ADDR",
	"DOTREP_WORKER_COUNT",
	"DOTREP_MAX_BATCH_SIZE",
	"DOTREP_DEFAULT_NETWORK",
	"DOTREP_ASSUMED_MAX_RAW",
	"DOTREP_BLOCKS_TO_SCAN",
	"DOTREP_RPC_ENDPOINTS__KUSAMA",
	"DOTREP_WEIGHTS__LOAN_REPAID",
	"DOTREP_LOG_FORMAT",
}

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "dotrep-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func scoringSnapshotWithTx(n int) model.WalletActivity {
	var a model.WalletActivity
	a.Generic.TransactionCountLastMonth = n
	return a
}
