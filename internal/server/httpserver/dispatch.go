package httpserver

import (
	"context"
	"fmt"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/google/uuid"
)

// dispatch runs req and returns its reply. A non-nil error is an internal
// failure: the reply is nil and the connection must be dropped.
func (s *Server) dispatch(ctx context.Context, conn *connection, req protocol.Req) (any, error) {
	if ping, ok := req.(*protocol.PingReq); ok {
		if conn.cc.caller != nil {
			s.svc.Ping(ctx, *conn.cc.caller, ping.Ping)
		}
		return &protocol.PingRep{Status: protocol.StatusOK, Pong: ping.Ping}, nil
	}

	var (
		rep any
		err error
	)
	switch conn.cc.kind {
	case protocol.KindAnonymous:
		rep, err = s.dispatchAnonymous(ctx, conn.cc, req)
	case protocol.KindInvited:
		rep, err = s.dispatchInvited(ctx, conn.cc, req)
	case protocol.KindAuthenticated:
		rep, err = s.dispatchAuthenticated(ctx, conn, req)
	}
	if err != nil {
		return errorRep(err)
	}
	return rep, nil
}

func okRep() *protocol.OKRep { return protocol.OK() }

func unknownCommand(req protocol.Req) *protocol.ErrorRep {
	return protocol.Error(protocol.StatusUnknownCommand, req.Cmd())
}

func (s *Server) dispatchAnonymous(ctx context.Context, cc *clientContext, req protocol.Req) (any, error) {
	switch req := req.(type) {
	case *protocol.OrganizationBootstrapReq:
		err := s.svc.Organizations.Bootstrap(ctx, services.BootstrapParams{
			OrganizationID:                cc.org,
			BootstrapToken:                req.BootstrapToken,
			RootVerifyKey:                 req.RootVerifyKey,
			UserCertificate:               req.UserCertificate,
			DeviceCertificate:             req.DeviceCertificate,
			RedactedUserCertificate:       req.RedactedUserCertificate,
			RedactedDeviceCertificate:     req.RedactedDeviceCertificate,
			SequesterAuthorityCertificate: req.SequesterAuthorityCertificate,
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.PkiEnrollmentSubmitReq:
		e, err := s.svc.Pki.Submit(ctx, cc.org, services.PkiSubmitParams{
			EnrollmentID:                     req.EnrollmentID,
			Force:                            req.Force,
			SubmitterDerX509Certificate:      req.SubmitterDerX509Certificate,
			SubmitterDerX509CertificateEmail: req.SubmitterDerX509CertificateEmail,
			SubmitPayloadSignature:           req.SubmitPayloadSignature,
			SubmitPayload:                    req.SubmitPayload,
		})
		if err != nil {
			return nil, err
		}
		return &protocol.PkiEnrollmentSubmitRep{Status: protocol.StatusOK, SubmittedOn: e.SubmittedOn}, nil

	case *protocol.PkiEnrollmentInfoReq:
		e, err := s.svc.Pki.Info(ctx, cc.org, req.EnrollmentID)
		if err != nil {
			return nil, err
		}
		rep := &protocol.PkiEnrollmentInfoRep{
			Status:           protocol.StatusOK,
			EnrollmentStatus: string(e.Status),
			SubmittedOn:      e.SubmittedOn,
			DecidedOn:        e.DecidedOn,
		}
		if e.Accepted != nil {
			rep.AccepterDerX509Certificate = e.Accepted.AccepterDerX509Certificate
			rep.AcceptPayloadSignature = e.Accepted.AcceptPayloadSignature
			rep.AcceptPayload = e.Accepted.AcceptPayload
		}
		return rep, nil
	}
	return unknownCommand(req), nil
}

func (s *Server) dispatchInvited(ctx context.Context, cc *clientContext, req protocol.Req) (any, error) {
	inv := cc.invitation
	peer := services.ClaimerPeer(cc.org, inv.Token)

	switch req := req.(type) {
	case *protocol.InviteInfoReq:
		info, err := s.svc.Invites.Info(ctx, cc.org, inv.Token)
		if err != nil {
			return nil, err
		}
		return &protocol.InviteInfoRep{
			Status:             protocol.StatusOK,
			Type:               string(info.Type),
			ClaimerEmail:       info.ClaimerEmail,
			GreeterUserID:      string(info.GreeterUserID),
			GreeterHumanHandle: humanHandle(info.GreeterHuman),
		}, nil

	case *protocol.Invite1ClaimerWaitPeerReq:
		pk, err := s.svc.Invites.WaitPeer(ctx, peer, req.ClaimerPublicKey)
		if err != nil {
			return nil, err
		}
		return &protocol.Invite1ClaimerWaitPeerRep{Status: protocol.StatusOK, GreeterPublicKey: pk}, nil

	case *protocol.Invite2aClaimerSendHashedNonceReq:
		nonce, err := s.svc.Invites.ClaimerSendHashedNonce(ctx, peer, req.ClaimerHashedNonce)
		if err != nil {
			return nil, err
		}
		return &protocol.Invite2aClaimerSendHashedNonceRep{Status: protocol.StatusOK, GreeterNonce: nonce}, nil

	case *protocol.Invite2bClaimerSendNonceReq:
		if err := s.svc.Invites.ClaimerSendNonce(ctx, peer, req.ClaimerNonce); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.Invite3aClaimerSignifyTrustReq:
		if err := s.svc.Invites.ClaimerTrust(ctx, peer); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.Invite3bClaimerWaitPeerTrustReq:
		if err := s.svc.Invites.GreeterTrust(ctx, peer); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.Invite4ClaimerCommunicateReq:
		payload, err := s.svc.Invites.Communicate(ctx, peer, req.Payload)
		if err != nil {
			return nil, err
		}
		return &protocol.Invite4CommunicateRep{Status: protocol.StatusOK, Payload: payload}, nil
	}
	return unknownCommand(req), nil
}

func (s *Server) dispatchAuthenticated(ctx context.Context, conn *connection, req protocol.Req) (any, error) {
	cc := conn.cc
	caller := *cc.caller

	switch req := req.(type) {
	case *protocol.EventsListenReq:
		return conn.nextEvent(ctx, req.Wait)

	case *protocol.EventsSubscribeReq:
		return okRep(), nil

	case *protocol.CertificateGetReq:
		records, last, err := s.svc.Users.Certificates(ctx, caller, req.Offset)
		if err != nil {
			return nil, err
		}
		certs := make([][]byte, 0, len(records))
		for _, r := range records {
			certs = append(certs, r.Certificate)
		}
		return &protocol.CertificateGetRep{Status: protocol.StatusOK, Certificates: certs, LastIndex: last}, nil

	case *protocol.MessageGetReq:
		msgs, err := s.svc.Messages.Get(ctx, caller, req.Offset)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.MessageItem, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, protocol.MessageItem{
				Count:     m.Index,
				Sender:    string(m.Sender),
				Timestamp: m.Timestamp,
				Body:      m.Body,
			})
		}
		return &protocol.MessageGetRep{Status: protocol.StatusOK, Messages: items}, nil

	// Users

	case *protocol.UserGetReq:
		info, err := s.svc.Users.GetUser(ctx, caller, models.UserID(req.UserID))
		if err != nil {
			return nil, err
		}
		return &protocol.UserGetRep{
			Status:                 protocol.StatusOK,
			UserCertificate:        info.UserCertificate,
			RevokedUserCertificate: info.RevokedUserCertificate,
			DeviceCertificates:     info.DeviceCertificates,
			Trustchain: protocol.Trustchain{
				Devices:      info.Trustchain.Devices,
				Users:        info.Trustchain.Users,
				RevokedUsers: info.Trustchain.RevokedUsers,
			},
		}, nil

	case *protocol.UserCreateReq:
		err := s.svc.Users.CreateUser(ctx, caller, services.UserCreateParams{
			UserCertificate:           req.UserCertificate,
			DeviceCertificate:         req.DeviceCertificate,
			RedactedUserCertificate:   req.RedactedUserCertificate,
			RedactedDeviceCertificate: req.RedactedDeviceCertificate,
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.UserRevokeReq:
		if err := s.svc.Users.RevokeUser(ctx, caller, req.RevokedUserCertificate); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.DeviceCreateReq:
		err := s.svc.Users.CreateDevice(ctx, caller, services.DeviceCreateParams{
			DeviceCertificate:         req.DeviceCertificate,
			RedactedDeviceCertificate: req.RedactedDeviceCertificate,
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.HumanFindReq:
		page, err := s.svc.Users.HumanFind(ctx, caller, services.HumanFindParams{
			Query:        req.Query,
			OmitRevoked:  req.OmitRevoked,
			OmitNonHuman: req.OmitNonHuman,
			Page:         req.Page,
			PerPage:      req.PerPage,
		})
		if err != nil {
			return nil, err
		}
		results := make([]protocol.HumanFindItem, 0, len(page.Results))
		for _, r := range page.Results {
			results = append(results, protocol.HumanFindItem{
				UserID:      string(r.UserID),
				HumanHandle: humanHandle(r.HumanHandle),
				Revoked:     r.Revoked,
			})
		}
		return &protocol.HumanFindRep{
			Status:  protocol.StatusOK,
			Results: results,
			Page:    req.Page,
			PerPage: req.PerPage,
			Total:   page.Total,
		}, nil

	// Invitations

	case *protocol.InviteNewReq:
		token, sent, err := s.svc.Invites.New(ctx, caller, services.InviteNewParams{
			Type:         models.InvitationType(req.Type),
			ClaimerEmail: req.ClaimerEmail,
			SendEmail:    req.SendEmail,
		})
		if err != nil {
			return nil, err
		}
		return &protocol.InviteNewRep{Status: protocol.StatusOK, Token: token, EmailSent: string(sent)}, nil

	case *protocol.InviteDeleteReq:
		if err := s.svc.Invites.Delete(ctx, caller, req.Token, models.InvitationDeletedReason(req.Reason)); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.InviteListReq:
		invs, err := s.svc.Invites.List(ctx, caller)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.InviteListItem, 0, len(invs))
		for _, st := range invs {
			items = append(items, protocol.InviteListItem{
				Type:         string(st.Invitation.Type),
				Token:        st.Invitation.Token,
				CreatedOn:    st.Invitation.CreatedOn,
				ClaimerEmail: st.Invitation.ClaimerEmail,
				Status:       string(st.Status),
			})
		}
		return &protocol.InviteListRep{Status: protocol.StatusOK, Invitations: items}, nil

	case *protocol.Invite1GreeterWaitPeerReq:
		pk, err := s.svc.Invites.WaitPeer(ctx, services.GreeterPeer(caller, req.Token), req.GreeterPublicKey)
		if err != nil {
			return nil, err
		}
		return &protocol.Invite1GreeterWaitPeerRep{Status: protocol.StatusOK, ClaimerPublicKey: pk}, nil

	case *protocol.Invite2aGreeterGetHashedNonceReq:
		hashed, err := s.svc.Invites.GreeterGetHashedNonce(ctx, services.GreeterPeer(caller, req.Token))
		if err != nil {
			return nil, err
		}
		return &protocol.Invite2aGreeterGetHashedNonceRep{Status: protocol.StatusOK, ClaimerHashedNonce: hashed}, nil

	case *protocol.Invite2bGreeterSendNonceReq:
		nonce, err := s.svc.Invites.GreeterSendNonce(ctx, services.GreeterPeer(caller, req.Token), req.GreeterNonce)
		if err != nil {
			return nil, err
		}
		return &protocol.Invite2bGreeterSendNonceRep{Status: protocol.StatusOK, ClaimerNonce: nonce}, nil

	case *protocol.Invite3aGreeterWaitPeerTrustReq:
		if err := s.svc.Invites.ClaimerTrust(ctx, services.GreeterPeer(caller, req.Token)); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.Invite3bGreeterSignifyTrustReq:
		if err := s.svc.Invites.GreeterTrust(ctx, services.GreeterPeer(caller, req.Token)); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.Invite4GreeterCommunicateReq:
		payload, err := s.svc.Invites.Communicate(ctx, services.GreeterPeer(caller, req.Token), req.Payload)
		if err != nil {
			return nil, err
		}
		return &protocol.Invite4CommunicateRep{Status: protocol.StatusOK, Payload: payload}, nil

	// Realms

	case *protocol.RealmCreateReq:
		if err := s.svc.Realms.Create(ctx, caller, req.RoleCertificate); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.RealmStatusReq:
		realm, err := s.svc.Realms.Status(ctx, caller, req.RealmID)
		if err != nil {
			return nil, err
		}
		rep := &protocol.RealmStatusRep{
			Status:               protocol.StatusOK,
			InMaintenance:        realm.InMaintenance(),
			MaintenanceStartedOn: realm.MaintenanceStartedOn,
			EncryptionRevision:   realm.EncryptionRevision,
		}
		if realm.MaintenanceType != nil {
			t := string(*realm.MaintenanceType)
			rep.MaintenanceType = &t
		}
		if realm.MaintenanceStartedBy != nil {
			by := string(*realm.MaintenanceStartedBy)
			rep.MaintenanceStartedBy = &by
		}
		return rep, nil

	case *protocol.RealmStatsReq:
		stats, err := s.svc.Realms.Stats(ctx, caller, req.RealmID)
		if err != nil {
			return nil, err
		}
		return &protocol.RealmStatsRep{Status: protocol.StatusOK, BlocksSize: stats.BlocksSize, VlobsSize: stats.VlobsSize}, nil

	case *protocol.RealmGetRoleCertificatesReq:
		certs, err := s.svc.Realms.RoleCertificates(ctx, caller, req.RealmID)
		if err != nil {
			return nil, err
		}
		return &protocol.RealmGetRoleCertificatesRep{Status: protocol.StatusOK, Certificates: certs}, nil

	case *protocol.RealmUpdateRolesReq:
		if err := s.svc.Realms.UpdateRoles(ctx, caller, req.RoleCertificate, req.RecipientMessage); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.RealmStartReencryptionMaintenanceReq:
		msgs := make(map[models.UserID][]byte, len(req.PerParticipantMessage))
		for user, body := range req.PerParticipantMessage {
			msgs[models.UserID(user)] = body
		}
		err := s.svc.Realms.StartReencryptionMaintenance(ctx, caller, services.StartMaintenanceParams{
			RealmID:               req.RealmID,
			EncryptionRevision:    req.EncryptionRevision,
			Timestamp:             req.Timestamp,
			PerParticipantMessage: msgs,
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.RealmFinishReencryptionMaintenanceReq:
		if err := s.svc.Realms.FinishReencryptionMaintenance(ctx, caller, req.RealmID, req.EncryptionRevision); err != nil {
			return nil, err
		}
		return okRep(), nil

	// Vlobs

	case *protocol.VlobCreateReq:
		blobs, err := sequesterBlobs(req.SequesterBlob)
		if err != nil {
			return nil, err
		}
		err = s.svc.Vlobs.Create(ctx, caller, services.VlobCreateParams{
			RealmID:            req.RealmID,
			EncryptionRevision: req.EncryptionRevision,
			VlobID:             req.VlobID,
			Timestamp:          req.Timestamp,
			Blob:               req.Blob,
			SequesterBlob:      blobs,
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.VlobUpdateReq:
		blobs, err := sequesterBlobs(req.SequesterBlob)
		if err != nil {
			return nil, err
		}
		err = s.svc.Vlobs.Update(ctx, caller, services.VlobUpdateParams{
			EncryptionRevision: req.EncryptionRevision,
			VlobID:             req.VlobID,
			Version:            req.Version,
			Timestamp:          req.Timestamp,
			Blob:               req.Blob,
			SequesterBlob:      blobs,
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.VlobReadReq:
		res, err := s.svc.Vlobs.Read(ctx, caller, req.EncryptionRevision, req.VlobID, req.Version, req.Timestamp)
		if err != nil {
			return nil, err
		}
		rep := &protocol.VlobReadRep{
			Status:                  protocol.StatusOK,
			Version:                 res.Atom.Version,
			Blob:                    res.Atom.Blob,
			Author:                  string(res.Atom.Author),
			Timestamp:               res.Atom.CreatedOn,
			AuthorLastRoleGrantedOn: res.AuthorLastRoleGrantedOn,
		}
		if cc.apiVersion.Major >= protocol.FirstSSEMajor {
			idx := res.CertificateIndex
			rep.CertificateIndex = &idx
		}
		return rep, nil

	case *protocol.VlobPollChangesReq:
		checkpoint, changes, err := s.svc.Vlobs.PollChanges(ctx, caller, req.RealmID, req.LastCheckpoint)
		if err != nil {
			return nil, err
		}
		out := make(map[string]uint64, len(changes))
		for id, version := range changes {
			out[id.String()] = version
		}
		return &protocol.VlobPollChangesRep{Status: protocol.StatusOK, CurrentCheckpoint: checkpoint, Changes: out}, nil

	case *protocol.VlobListVersionsReq:
		versions, err := s.svc.Vlobs.ListVersions(ctx, caller, req.VlobID)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.VlobVersionItem, 0, len(versions))
		for _, v := range versions {
			items = append(items, protocol.VlobVersionItem{Version: v.Version, Timestamp: v.CreatedOn, Author: string(v.Author)})
		}
		return &protocol.VlobListVersionsRep{Status: protocol.StatusOK, Versions: items}, nil

	case *protocol.VlobMaintenanceGetReencryptionBatchReq:
		batch, err := s.svc.Vlobs.ReencryptionBatch(ctx, caller, req.RealmID, req.EncryptionRevision, req.Size)
		if err != nil {
			return nil, err
		}
		entries := make([]protocol.ReencryptionBatchEntry, 0, len(batch))
		for _, e := range batch {
			entries = append(entries, protocol.ReencryptionBatchEntry{VlobID: e.VlobID, Version: e.Version, Blob: e.Blob})
		}
		return &protocol.VlobMaintenanceGetReencryptionBatchRep{Status: protocol.StatusOK, Batch: entries}, nil

	case *protocol.VlobMaintenanceSaveReencryptionBatchReq:
		batch := make([]models.ReencryptionEntry, 0, len(req.Batch))
		for _, e := range req.Batch {
			batch = append(batch, models.ReencryptionEntry{VlobID: e.VlobID, Version: e.Version, Blob: e.Blob})
		}
		total, done, err := s.svc.Vlobs.SaveReencryptionBatch(ctx, caller, req.RealmID, req.EncryptionRevision, batch)
		if err != nil {
			return nil, err
		}
		return &protocol.VlobMaintenanceSaveReencryptionBatchRep{Status: protocol.StatusOK, Total: total, Done: done}, nil

	// Blocks

	case *protocol.BlockCreateReq:
		if err := s.svc.Blocks.Create(ctx, caller, req.BlockID, req.RealmID, req.Block); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.BlockReadReq:
		data, err := s.svc.Blocks.Read(ctx, caller, req.BlockID)
		if err != nil {
			return nil, err
		}
		return &protocol.BlockReadRep{Status: protocol.StatusOK, Block: data}, nil

	// Organization

	case *protocol.OrganizationStatsReq:
		stats, err := s.svc.Organizations.CallerStats(ctx, caller)
		if err != nil {
			return nil, err
		}
		rep := &protocol.OrganizationStatsRep{
			Status:       protocol.StatusOK,
			DataSize:     stats.DataSize,
			MetadataSize: stats.MetadataSize,
			Realms:       stats.Realms,
			Users:        stats.Users,
			ActiveUsers:  stats.ActiveUsers,
		}
		for _, d := range stats.UsersPerProfileDetail {
			rep.UsersPerProfileDetail = append(rep.UsersPerProfileDetail, protocol.UsersPerProfileDetailItem{
				Profile: string(d.Profile), Active: d.Active, Revoked: d.Revoked,
			})
		}
		return rep, nil

	case *protocol.OrganizationConfigReq:
		cfg, err := s.svc.Organizations.Config(ctx, caller)
		if err != nil {
			return nil, err
		}
		return &protocol.OrganizationConfigRep{
			Status:                        protocol.StatusOK,
			UserProfileOutsiderAllowed:    cfg.UserProfileOutsiderAllowed,
			ActiveUsersLimit:              cfg.ActiveUsersLimit,
			SequesterAuthorityCertificate: cfg.SequesterAuthorityCertificate,
			SequesterServicesCertificates: cfg.SequesterServicesCertificates,
		}, nil

	// PKI enrollment

	case *protocol.PkiEnrollmentListReq:
		enrollments, err := s.svc.Pki.List(ctx, caller)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.PkiEnrollmentListItem, 0, len(enrollments))
		for _, e := range enrollments {
			items = append(items, protocol.PkiEnrollmentListItem{
				EnrollmentID:                e.EnrollmentID,
				SubmittedOn:                 e.SubmittedOn,
				SubmitterDerX509Certificate: e.SubmitterDerX509Certificate,
				SubmitPayloadSignature:      e.SubmitPayloadSignature,
				SubmitPayload:               e.SubmitPayload,
			})
		}
		return &protocol.PkiEnrollmentListRep{Status: protocol.StatusOK, Enrollments: items}, nil

	case *protocol.PkiEnrollmentRejectReq:
		if err := s.svc.Pki.Reject(ctx, caller, req.EnrollmentID); err != nil {
			return nil, err
		}
		return okRep(), nil

	case *protocol.PkiEnrollmentAcceptReq:
		err := s.svc.Pki.Accept(ctx, caller, services.PkiAcceptParams{
			EnrollmentID: req.EnrollmentID,
			Acceptance: models.PkiEnrollmentAcceptance{
				AccepterDerX509Certificate: req.AccepterDerX509Certificate,
				AcceptPayloadSignature:     req.AcceptPayloadSignature,
				AcceptPayload:              req.AcceptPayload,
			},
			UserCreateParams: services.UserCreateParams{
				UserCertificate:           req.UserCertificate,
				DeviceCertificate:         req.DeviceCertificate,
				RedactedUserCertificate:   req.RedactedUserCertificate,
				RedactedDeviceCertificate: req.RedactedDeviceCertificate,
			},
		})
		if err != nil {
			return nil, err
		}
		return okRep(), nil
	}
	return unknownCommand(req), nil
}

func humanHandle(hh *models.HumanHandle) *protocol.HumanHandle {
	if hh == nil {
		return nil
	}
	return &protocol.HumanHandle{Email: hh.Email, Label: hh.Label}
}

// sequesterBlobs parses the service ids of a sequester_blob field.
func sequesterBlobs(in map[string][]byte) (map[uuid.UUID][]byte, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[uuid.UUID][]byte, len(in))
	for id, blob := range in {
		sid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: sequester service id %q", services.ErrInvalidData, id)
		}
		out[sid] = blob
	}
	return out, nil
}
