package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"dashrpc/dashboard"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	messagesFollow bool
	projectsRole   string
	boqOut         string
	profileDims    dashboard.Dimensions
	registerReq    dashboard.RegisterRequest
)

// loginCmd 登录
var loginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Check credentials and print the user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			user, err := d.Login(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			user, err := d.Register(ctx, &registerReq)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user <id>",
	Short: "Print a user, or null when unknown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			user, err := d.GetUserByID(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		})
	},
}

var factorCmd = &cobra.Command{
	Use:   "factor <user-id> <factor>",
	Short: "Update a user's price factor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		factor, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("factor: %w", err)
		}
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			user, err := d.UpdateFactor(ctx, args[0], factor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		})
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats <user-id>",
	Short: "List a user's chats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			chats, err := d.GetChats(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chats)
		})
	},
}

// messagesCmd 列出或持续接收聊天消息
var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "List a chat's messages",
	Long: `List a chat's messages. With --follow, keep receiving new messages until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if messagesFollow {
			return followMessages(cmd, args[0])
		}
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			msgs, err := d.GetMessages(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), msgs)
		})
	},
}

func followMessages(cmd *cobra.Command, chatID string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	items := make(chan dashboard.Message, 64)
	sub, err := a.dashboard.StreamMessages(ctx, chatID,
		func(m dashboard.Message) {
			select {
			case items <- m:
			case <-ctx.Done():
			}
		},
		func(err error) { a.log.Warn("message stream failed", zap.String("chat", chatID), zap.Error(err)) },
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case m := <-items:
			fmt.Fprintf(out, "%s  %-6s %s\n", m.SentAt.Format("15:04:05"), m.SenderID, m.Text)
		case <-sub.Done():
			return sub.Err()
		case <-ctx.Done():
			return nil
		}
	}
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <sender-id> <text>",
	Short: "Send a message to a chat",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			msg, err := d.SendMessage(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), msg)
		})
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects <user-id>",
	Short: "List the projects visible to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			projects, err := d.GetProjectsForUser(ctx, args[0], projectsRole)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), projects)
		})
	},
}

// boqCmd 下载工程量清单 PDF
var boqCmd = &cobra.Command{
	Use:   "boq <project-id>",
	Short: "Download a project's bill of quantities as PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			pdf, err := d.GetBoqPdf(ctx, args[0])
			if err != nil {
				return err
			}
			out := boqOut
			if out == "" {
				out = args[0] + ".pdf"
			}
			if err := os.WriteFile(out, pdf, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(pdf))
			return nil
		})
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Search the profile catalog by dimensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDashboard(cmd, func(ctx context.Context, d *dashboard.Dashboard) error {
			profiles, err := d.GetProfilesByDimensions(ctx, profileDims)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profiles)
		})
	},
}

// routesCmd 打印操作表，不连接后端
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print every dashboard operation and its route",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "OPERATION\tROUTE\tSHAPE\tON DECLINE / FAILURE")
		for _, op := range dashboard.Operations() {
			outcome := "-"
			switch {
			case op.Shape == dashboard.MultiReply:
				outcome = op.Policy.String()
			case op.Decline != nil:
				outcome = op.Decline.Error()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", op.Name, op.Route, op.Shape, outcome)
		}
		return w.Flush()
	},
}

// withDashboard 在调用超时之外再受 Ctrl-C 控制
func withDashboard(cmd *cobra.Command, fn func(ctx context.Context, d *dashboard.Dashboard) error) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a.dashboard)
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVar(&registerReq.Name, "name", "", "display name")
	registerCmd.Flags().StringVar(&registerReq.Email, "email", "", "login email")
	registerCmd.Flags().StringVar(&registerReq.Password, "password", "", "password, at least 8 characters")
	registerCmd.Flags().StringVar(&registerReq.Company, "company", "", "company")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")

	messagesCmd.Flags().BoolVarP(&messagesFollow, "follow", "f", false, "keep receiving new messages")
	projectsCmd.Flags().StringVar(&projectsRole, "role", "dealer", "role of the user (admin sees every project)")
	boqCmd.Flags().StringVarP(&boqOut, "out", "o", "", "output file (default <project-id>.pdf)")

	profilesCmd.Flags().Float64Var(&profileDims.MinWidth, "min-width", 0, "minimum width, mm")
	profilesCmd.Flags().Float64Var(&profileDims.MaxWidth, "max-width", 0, "maximum width, mm (0 = unbounded)")
	profilesCmd.Flags().Float64Var(&profileDims.MinHeight, "min-height", 0, "minimum height, mm")
	profilesCmd.Flags().Float64Var(&profileDims.MaxHeight, "max-height", 0, "maximum height, mm (0 = unbounded)")
	profilesCmd.Flags().Float64Var(&profileDims.MinThickness, "min-thickness", 0, "minimum wall thickness, mm")
}
