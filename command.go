package ftp

import "strings"

// Command is an FTP control-channel verb. The constants below name the
// RFC 959/2228/2428 verbs and the extensions this module uses; not every
// one of them is sent by a typed method. Arbitrary verbs can be sent
// with Quote.
type Command string

const (
	cmdUser Command = "USER"
	cmdPass Command = "PASS"
	cmdAcct Command = "ACCT"
	cmdCwd  Command = "CWD"
	cmdCdup Command = "CDUP"
	cmdSmnt Command = "SMNT"
	cmdRein Command = "REIN"
	cmdQuit Command = "QUIT"
	cmdPort Command = "PORT"
	cmdEprt Command = "EPRT"
	cmdPasv Command = "PASV"
	cmdEpsv Command = "EPSV"
	cmdType Command = "TYPE"
	cmdStru Command = "STRU"
	cmdMode Command = "MODE"
	cmdRetr Command = "RETR"
	cmdStor Command = "STOR"
	cmdStou Command = "STOU"
	cmdAppe Command = "APPE"
	cmdAllo Command = "ALLO"
	cmdRest Command = "REST"
	cmdRnfr Command = "RNFR"
	cmdRnto Command = "RNTO"
	cmdAbor Command = "ABOR"
	cmdDele Command = "DELE"
	cmdRmd  Command = "RMD"
	cmdMkd  Command = "MKD"
	cmdPwd  Command = "PWD"
	cmdList Command = "LIST"
	cmdNlst Command = "NLST"
	cmdSite Command = "SITE"
	cmdSyst Command = "SYST"
	cmdStat Command = "STAT"
	cmdHelp Command = "HELP"
	cmdNoop Command = "NOOP"
	cmdFeat Command = "FEAT"
	cmdOpts Command = "OPTS"
	cmdAuth Command = "AUTH"
	cmdPbsz Command = "PBSZ"
	cmdProt Command = "PROT"
	cmdHost Command = "HOST"
	cmdSize Command = "SIZE"
	cmdMdtm Command = "MDTM"
	cmdMfmt Command = "MFMT"
	cmdHash Command = "HASH"
)

// encodeCommand renders a command line ready to write to the control
// channel. It rejects any argument containing CR or LF, since such an
// argument would let a caller smuggle a second command onto the wire
// (Testable Property 4 in the specification this module implements).
func encodeCommand(cmd Command, args ...string) (string, error) {
	for _, a := range args {
		if strings.ContainsAny(a, "\r\n") {
			return "", &UsageError{Op: string(cmd), Reason: "argument contains CR or LF"}
		}
	}
	line := string(cmd)
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	return line + "\r\n", nil
}
