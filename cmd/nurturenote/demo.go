package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	defaultServer   = "http://127.0.0.1:8000"
	demoPostTimeout = 10 * time.Second
)

// demoEntry is the canned entry posted by demo-entry.
var demoEntry = map[string]string{
	"mood": "피곤하지만 뿌듯",
	"body": "새벽에 두 번 깨어서 안아주느라 잠이 부족했지만, 아침에 일어나 가족이 함께 20분 정도 느긋하게 " +
		"스트레칭하고 산책을 하니 아이가 금방 웃음을 되찾았다. 오전에는 동화책을 함께 읽어주며 " +
		"조용한 시간을 보냈고, 점심 이후에는 30분 정도 블록 놀이를 하며 혼자 집중하는 모습을 지켜봤다. " +
		"최근 들어 오후 낮잠 시간이 뒤로 밀리는 경향이 있어서 오늘은 평소보다 15분 일찍 준비해 보았고, " +
		"잠들기 전에 좋아하는 자장가를 반복해서 불러 주니 비교적 빠르게 잠들었다.",
}

// DemoEntryCmd posts the canned entry to a running worker.
func DemoEntryCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "demo-entry",
		Short: "POST a canned demo entry to the running worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := resty.New().
				SetTimeout(demoPostTimeout).
				SetJSONMarshaler(json.Marshal).
				SetJSONUnmarshaler(json.Unmarshal)
			return sendDemoEntry(client, server, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "Base URL of the running worker")

	return cmd
}

func sendDemoEntry(client *resty.Client, server string, out io.Writer) error {
	url := strings.TrimRight(server, "/") + "/entries"

	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(demoEntry).
		Post(url)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Demo entry POST failed")
		fmt.Fprintf(out, "데모 인풋 전송 실패: %v\n", err)
		return err
	}

	log.Info().Str("url", url).Msg("Demo entry sent")
	fmt.Fprintln(out, "데모 인풋 전송 성공:")

	var body any
	if json.Unmarshal(resp.Body(), &body) != nil {
		fmt.Fprintln(out, resp.String())
		return nil
	}
	return printJSON(out, body)
}
