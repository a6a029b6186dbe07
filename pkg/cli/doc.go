/*
Package cli provides helpers shared by the bastion commands.

Output Formatting:

Commands print results as text or JSON:

	f, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	return f.FormatTo(cmd.OutOrStdout(), decision)

Exit Codes:

Commands return an ExitError to choose the process exit status. The
evaluate command uses ExitBlocked so scripts can branch on the decision.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
