// cmd/demo/seed.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Corphon/odissey/internal/services"
)

// seedFile 种子文件格式
type seedFile struct {
	Worlds []seedWorld `yaml:"worlds"`
}

type seedWorld struct {
	services.CreateWorldRequest `yaml:",inline"`

	// YAML 中的素材包，写入前转成 JSON
	Artifacts map[string]interface{} `yaml:"artifacts"`
}

func init() {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert worlds from a YAML seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := bootstrap()
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("打开种子文件失败: %w", err)
			}
			defer f.Close()

			results, err := seedWorlds(cmd.Context(), svc.worlds, f)
			for _, r := range results {
				marker := ""
				if r.DemoID != "" {
					marker = " (demo)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s  %s%s\n", r.WorldID, r.Title, marker)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "worlds.yaml", "YAML seed file")
	rootCmd.AddCommand(cmd)
}

// parseSeedFile 解析 YAML 种子文件
func parseSeedFile(r io.Reader) ([]services.CreateWorldRequest, error) {
	var sf seedFile
	if err := yaml.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("解析种子文件失败: %w", err)
	}

	requests := make([]services.CreateWorldRequest, 0, len(sf.Worlds))
	for i, w := range sf.Worlds {
		req := w.CreateWorldRequest
		if w.Artifacts != nil {
			raw, err := json.Marshal(w.Artifacts)
			if err != nil {
				return nil, fmt.Errorf("第 %d 个世界的素材包无法序列化: %w", i+1, err)
			}
			req.Artifacts = raw
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// seedWorlds 逐个创建世界，遇到错误立即停止并返回已创建的部分
func seedWorlds(ctx context.Context, worlds *services.WorldService, r io.Reader) ([]*services.CreateWorldResult, error) {
	requests, err := parseSeedFile(r)
	if err != nil {
		return nil, err
	}

	results := make([]*services.CreateWorldResult, 0, len(requests))
	for _, req := range requests {
		res, err := worlds.CreateWorld(ctx, req)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
