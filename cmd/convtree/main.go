// =============================================================================
// convtree 主入口
// =============================================================================
// 使用方法:
//
//	convtree generate --intent "plan a trip" --domain travel
//	convtree batch --seeds seeds.yaml --config convtree.yaml
//	convtree health
//	convtree version
// =============================================================================

package main

import (
	"fmt"
	"os"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
