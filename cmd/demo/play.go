// cmd/demo/play.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Corphon/odissey/internal/models"
	"github.com/Corphon/odissey/internal/services"
)

func init() {
	var (
		worldID string
		name    string
		age     int
		traits  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a session against a world in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			personality, err := parseTraits(traits)
			if err != nil {
				return err
			}
			svc, err := bootstrap()
			if err != nil {
				return err
			}

			player := services.CreateUserRequest{Personality: personality}
			if name != "" {
				player.Name = &name
			}
			if cmd.Flags().Changed("age") {
				player.Age = &age
			}
			return playSession(cmd.Context(), svc, cmd.InOrStdin(), cmd.OutOrStdout(), worldID, player)
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "World ID to play")
	cmd.Flags().StringVar(&name, "name", "", "Player name")
	cmd.Flags().IntVar(&age, "age", 0, "Player age")
	cmd.Flags().StringToStringVar(&traits, "trait", nil, "Personality traits, e.g. --trait adventurous=0.9")
	_ = cmd.MarkFlagRequired("world")
	rootCmd.AddCommand(cmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "worlds",
		Short: "List public and demo worlds",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := bootstrap()
			if err != nil {
				return err
			}
			return listWorlds(cmd.Context(), svc.worlds, cmd.OutOrStdout())
		},
	})
}

// parseTraits 把 key=value 形式的特质转为人格快照
func parseTraits(traits map[string]string) (models.Personality, error) {
	if len(traits) == 0 {
		return nil, nil
	}
	p := make(models.Personality, len(traits))
	for k, v := range traits {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("特质 %s 的分数无效: %q", k, v)
		}
		p[k] = f
	}
	return p, nil
}

// playSession 创建用户和会话，然后逐行读取输入直到 quit 或输入结束
func playSession(ctx context.Context, svc *consoleServices, in io.Reader, out io.Writer, worldID string, player services.CreateUserRequest) error {
	user, err := svc.users.CreateUser(ctx, player)
	if err != nil {
		return err
	}

	snapshot := player.Personality
	if snapshot == nil {
		snapshot = models.Personality{}
	}
	session, err := svc.sessions.CreateSession(ctx, user.UserID, worldID, snapshot)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "🌍 %s (%s)\n", session.WorldTitle, user.Name)
	fmt.Fprintf(out, "📖 %s\n", session.InitialMessage)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			break
		}

		turn, err := svc.sessions.ProcessTurn(ctx, session.SessionID, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "📖 %s\n", turn.NarratorResponse)
	}
	fmt.Fprintf(out, "\n👋 session %s saved\n", session.SessionID)
	return scanner.Err()
}

func listWorlds(ctx context.Context, worlds *services.WorldService, out io.Writer) error {
	public, err := worlds.ListWorlds(ctx)
	if err != nil {
		return err
	}
	demos, err := worlds.ListDemoWorlds(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "公开世界 (%d):\n", len(public))
	for _, w := range public {
		fmt.Fprintf(out, "  %s  %s [%s]\n", w.WorldID, w.Title, w.Genre)
	}
	fmt.Fprintf(out, "演示世界 (%d):\n", len(demos))
	for _, d := range demos {
		fmt.Fprintf(out, "  %s  %s: %s\n", d.WorldID, d.Title, d.PreviewContent)
	}
	return nil
}
