package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pubwire-dev/pubwire/pkg/client"
	"github.com/pubwire-dev/pubwire/pkg/protocol"
)

func invokeCmd() *cobra.Command {
	var (
		negotiateURL string
		event        string
		data         string
		dataType     string
		timeout      time.Duration
		count        int
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Invoke an upstream event through the relay",
		Long: `Connect to the relay via the negotiate endpoint, send an
invocation, and print the response. With --count > 1 the invocations run
concurrently to demonstrate independent correlation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := protocol.ParseDataType(dataType)
			if err != nil {
				return err
			}

			cfg := client.DefaultConfig().WithInvokeTimeout(timeout)
			c := client.NewClient(client.HTTPNegotiate(negotiateURL, nil), cfg)
			defer c.Close()

			ctx := cmd.Context()
			if err := c.Connect(ctx); err != nil {
				return err
			}
			fmt.Printf("connected as %s (connection %s)\n", c.UserID(), c.ConnectionID())

			var wg sync.WaitGroup
			results := make([]string, count)
			for i := 0; i < count; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := c.Invoke(ctx, event, dt, []byte(data))
					if err != nil {
						results[i] = fmt.Sprintf("error: %v", err)
						return
					}
					results[i] = fmt.Sprintf("%s: %s", res.DataType, res.Data)
				}(i)
			}
			wg.Wait()

			for i, r := range results {
				fmt.Printf("[%d] %s\n", i+1, r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&negotiateURL, "negotiate", "http://localhost:8080/negotiate?id=demo", "Negotiate endpoint URL")
	cmd.Flags().StringVar(&event, "event", "echo", "Event name to invoke")
	cmd.Flags().StringVar(&data, "data", `{"hello":"world"}`, "Payload")
	cmd.Flags().StringVar(&dataType, "data-type", "json", "Payload data type (json, text, binary)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Invocation timeout")
	cmd.Flags().IntVar(&count, "count", 1, "Number of concurrent invocations")

	return cmd
}
